package domain

import "time"

// IndexState is the per-owner position in the remote listing.
type IndexState struct {
	OwnerID string `json:"ownerId"`

	// Cursor is the opaque page token of the page being consumed.
	// Empty means the first page.
	Cursor string `json:"cursor,omitempty"`

	// LastFileID is the last file processed within a partially consumed page
	LastFileID string `json:"lastFileId,omitempty"`

	LastRunAt *time.Time `json:"lastRunAt,omitempty"`
	Stats     IndexStats `json:"stats"`
}

// IndexStats holds statistics for the most recent listing run
type IndexStats struct {
	Processed      int   `json:"processed"`
	NewOrUpdated   int   `json:"newOrUpdated"`
	BytesProcessed int64 `json:"bytesProcessed"`
}

// IndexResult summarises one listing run
type IndexResult struct {
	Processed    int    `json:"processed"`
	NewOrUpdated int    `json:"newOrUpdated"`
	Cursor       string `json:"cursor,omitempty"`
	Done         bool   `json:"done"`
}

// IngestResult summarises one ingestion run
type IngestResult struct {
	Processed      int   `json:"processed"`
	Ingested       int   `json:"ingested"`
	Skipped        int   `json:"skipped"`
	Errored        int   `json:"errored"`
	BytesProcessed int64 `json:"bytes"`
	Done           bool  `json:"done"`
}

// TextStatus is the outcome of a text fetch
type TextStatus string

const (
	TextStatusOK      TextStatus = "ok"
	TextStatusSkipped TextStatus = "skipped"
)

// TextResult is the extracted text of one remote file, or the reason it was skipped
type TextResult struct {
	Status TextStatus
	Text   string
	Bytes  int64
	Reason string
}

// TextOK builds a successful TextResult.
func TextOK(text string, bytes int64) *TextResult {
	return &TextResult{Status: TextStatusOK, Text: text, Bytes: bytes}
}

// TextSkipped builds a skipped TextResult.
func TextSkipped(reason string) *TextResult {
	return &TextResult{Status: TextStatusSkipped, Reason: reason}
}

// PipelineResult is the outcome of a full background run for one owner
type PipelineResult struct {
	OwnerID  string        `json:"ownerId"`
	Index    IndexResult   `json:"index"`
	Ingest   IngestResult  `json:"ingest"`
	Embed    EmbedResult   `json:"embed"`
	Duration time.Duration `json:"duration"`
}

package domain

import "time"

// Supported Drive content types
const (
	MimeGoogleDoc    = "application/vnd.google-apps.document"
	MimeGoogleSheet  = "application/vnd.google-apps.spreadsheet"
	MimeGoogleSlides = "application/vnd.google-apps.presentation"
	MimePDF          = "application/pdf"
	MimePlainText    = "text/plain"

	// MimeUnknown is stored when the listing omits a content type
	MimeUnknown = "application/octet-stream"

	// UntitledFileName is stored when the listing omits a display name
	UntitledFileName = "Untitled"
)

var supportedMimeTypes = map[string]bool{
	MimeGoogleDoc:    true,
	MimeGoogleSheet:  true,
	MimeGoogleSlides: true,
	MimePDF:          true,
	MimePlainText:    true,
}

// IsSupportedMimeType reports whether files of this type are ever downloaded.
func IsSupportedMimeType(mimeType string) bool {
	return supportedMimeTypes[mimeType]
}

// UnsupportedMimeTypeReason is the static skip reason for a content type
// outside the allow-list.
func UnsupportedMimeTypeReason(mimeType string) string {
	if mimeType == "" {
		mimeType = "unknown"
	}
	return "Unsupported mime type: " + mimeType
}

// FileStatus is the indexing status of a remote file
type FileStatus string

const (
	FileStatusNew     FileStatus = "NEW"
	FileStatusIndexed FileStatus = "INDEXED"
	FileStatusSkipped FileStatus = "SKIPPED"
	FileStatusError   FileStatus = "ERROR"
)

// ContentStatus is the ingestion status of a remote file
type ContentStatus string

const (
	ContentStatusPending  ContentStatus = "PENDING"
	ContentStatusIngested ContentStatus = "INGESTED"
	ContentStatusSkipped  ContentStatus = "SKIPPED"
	ContentStatusError    ContentStatus = "ERROR"
)

// RemoteFile is one entry of a remote listing page.
type RemoteFile struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MimeType     string     `json:"mimeType"`
	ModifiedTime *time.Time `json:"modifiedTime,omitempty"`
	SizeBytes    *int64     `json:"sizeBytes,omitempty"`
	Checksum     string     `json:"checksum,omitempty"`
}

// ContentVersion derives the version marker from modified time or checksum.
func (f *RemoteFile) ContentVersion() string {
	return contentVersion(f.ModifiedTime, f.Checksum)
}

// FileRef tracks one indexed remote file for one owner.
type FileRef struct {
	ID               string        `json:"id"`
	OwnerID          string        `json:"ownerId"`
	DriveFileID      string        `json:"driveFileId"`
	Name             string        `json:"name"`
	MimeType         string        `json:"mimeType"`
	ModifiedTime     *time.Time    `json:"modifiedTime,omitempty"`
	SizeBytes        *int64        `json:"sizeBytes,omitempty"`
	Checksum         string        `json:"checksum,omitempty"`
	Status           FileStatus    `json:"status"`
	LastError        string        `json:"lastError,omitempty"`
	ContentStatus    ContentStatus `json:"contentStatus"`
	ContentLastError string        `json:"contentLastError,omitempty"`
	ContentVersion   string        `json:"contentVersion,omitempty"`
	IngestedAt       *time.Time    `json:"ingestedAt,omitempty"`

	// ChunksArtifactID is the CHUNKS_JSON artifact written by the most
	// recent successful ingestion. Only its embeddings are searchable.
	ChunksArtifactID string `json:"chunksArtifactId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CurrentContentVersion derives the version marker of the stored metadata.
func (f *FileRef) CurrentContentVersion() string {
	return contentVersion(f.ModifiedTime, f.Checksum)
}

// IsIngestCandidate reports whether the ingestion stage should pick the file up.
func (f *FileRef) IsIngestCandidate() bool {
	return (f.Status == FileStatusNew || f.Status == FileStatusIndexed) &&
		f.ContentStatus == ContentStatusPending
}

// NewFileRef builds the ref for a file seen for the first time. Files
// outside the allow-list are SKIPPED and never downloaded.
func NewFileRef(ownerID string, f *RemoteFile, now time.Time) *FileRef {
	ref := &FileRef{
		ID:          GenerateID(),
		OwnerID:     ownerID,
		DriveFileID: f.ID,
		CreatedAt:   now,
	}
	ref.copyListing(f, now)
	if IsSupportedMimeType(f.MimeType) {
		ref.Status = FileStatusNew
		ref.ContentStatus = ContentStatusPending
	} else {
		ref.markUnsupported(f.MimeType)
	}
	return ref
}

// ApplyListing refreshes an existing ref from a later listing and reports
// whether the content version changed. A changed version on INGESTED or
// ERROR content re-enters PENDING.
func (f *FileRef) ApplyListing(file *RemoteFile, now time.Time) bool {
	previous := f.CurrentContentVersion()
	wasSkipped := f.Status == FileStatusSkipped
	f.copyListing(file, now)
	changed := previous != f.CurrentContentVersion()

	if !IsSupportedMimeType(file.MimeType) {
		f.markUnsupported(file.MimeType)
		return changed
	}

	f.Status = FileStatusIndexed
	f.LastError = ""
	switch {
	case wasSkipped && f.ContentStatus == ContentStatusSkipped:
		f.ContentStatus = ContentStatusPending
		f.ContentLastError = ""
	case changed && (f.ContentStatus == ContentStatusIngested || f.ContentStatus == ContentStatusError):
		f.ContentStatus = ContentStatusPending
		f.ContentLastError = ""
	}
	return changed
}

func (f *FileRef) copyListing(file *RemoteFile, now time.Time) {
	f.Name = file.Name
	if f.Name == "" {
		f.Name = UntitledFileName
	}
	f.MimeType = file.MimeType
	if f.MimeType == "" {
		f.MimeType = MimeUnknown
	}
	f.ModifiedTime = file.ModifiedTime
	f.SizeBytes = file.SizeBytes
	f.Checksum = file.Checksum
	f.UpdatedAt = now
}

func (f *FileRef) markUnsupported(mimeType string) {
	reason := UnsupportedMimeTypeReason(mimeType)
	f.Status = FileStatusSkipped
	f.LastError = reason
	f.ContentStatus = ContentStatusSkipped
	f.ContentLastError = reason
}

// CanRequeue reports whether an explicit requeue may return the ref to PENDING.
func (f *FileRef) CanRequeue() bool {
	return IsSupportedMimeType(f.MimeType) && f.Status != FileStatusSkipped
}

func contentVersion(modified *time.Time, checksum string) string {
	if modified != nil {
		return modified.UTC().Format(time.RFC3339Nano)
	}
	return checksum
}

// FileListOptions pages through an owner's file refs
type FileListOptions struct {
	Limit  int
	Offset int
}

// FileListResult is a page of file refs with aggregate status counts
type FileListResult struct {
	Files               []*FileRef            `json:"files"`
	Limit               int                   `json:"limit"`
	Offset              int                   `json:"offset"`
	Total               int                   `json:"total"`
	StatusCounts        map[FileStatus]int    `json:"statusCounts"`
	ContentStatusCounts map[ContentStatus]int `json:"contentStatusCounts"`
}

// DriveStatus summarises an owner's Drive connection and indexing state
type DriveStatus struct {
	Connected    bool               `json:"connected"`
	StatusCounts map[FileStatus]int `json:"statusCounts"`
}

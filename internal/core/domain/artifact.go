package domain

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// ArtifactType identifies the kind of derived payload
type ArtifactType string

const (
	ArtifactRawText      ArtifactType = "RAW_TEXT"
	ArtifactChunksJSON   ArtifactType = "CHUNKS_JSON"
	ArtifactMetadataJSON ArtifactType = "METADATA_JSON"
)

// Artifact is a content-addressed payload derived from one file's text.
// Unique per (FileRefID, Type, ContentHash).
type Artifact struct {
	ID          string          `json:"id"`
	OwnerID     string          `json:"ownerId"`
	FileRefID   string          `json:"fileRefId"`
	Type        ArtifactType    `json:"type"`
	ContentHash string          `json:"contentHash"`
	ContentText string          `json:"contentText,omitempty"`
	ContentJSON json.RawMessage `json:"contentJson,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Chunk is one window of a file's extracted text.
// Start and End are character offsets into the raw text.
type Chunk struct {
	Index int    `json:"index"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// SourceMetadata describes the remote file an artifact came from
type SourceMetadata struct {
	DriveFileID  string  `json:"driveFileId"`
	Name         string  `json:"name"`
	MimeType     string  `json:"mimeType"`
	ModifiedTime *string `json:"modifiedTime"`
}

// NewSourceMetadata builds the source block shared by chunk and metadata payloads.
func NewSourceMetadata(ref *FileRef) SourceMetadata {
	meta := SourceMetadata{
		DriveFileID: ref.DriveFileID,
		Name:        ref.Name,
		MimeType:    ref.MimeType,
	}
	if ref.ModifiedTime != nil {
		s := ref.ModifiedTime.UTC().Format(time.RFC3339Nano)
		meta.ModifiedTime = &s
	}
	return meta
}

// ChunkPayload is the CHUNKS_JSON artifact body
type ChunkPayload struct {
	Chunks []Chunk        `json:"chunks"`
	Source SourceMetadata `json:"source"`
}

// MetadataPayload is the METADATA_JSON artifact body
type MetadataPayload struct {
	Source         SourceMetadata `json:"source"`
	SizeBytes      *int64         `json:"sizeBytes"`
	Checksum       *string        `json:"checksum"`
	ContentVersion *string        `json:"contentVersion"`
}

// HashString returns the hex SHA-256 digest of s.
func HashString(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashJSON encodes v and returns the encoding with its digest.
func HashJSON(v any) ([]byte, string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, "", err
	}
	sum := sha256.Sum256(data)
	return data, hex.EncodeToString(sum[:]), nil
}

// DecodeChunkPayload validates and decodes a CHUNKS_JSON body.
// Unknown fields are rejected, as are chunks without text or with a
// negative or repeated index.
func DecodeChunkPayload(data []byte) (*ChunkPayload, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedArtifact)
	}

	var raw struct {
		Chunks *[]struct {
			Index *int    `json:"index"`
			Start int     `json:"start"`
			End   int     `json:"end"`
			Text  *string `json:"text"`
		} `json:"chunks"`
		Source SourceMetadata `json:"source"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedArtifact, err)
	}
	if raw.Chunks == nil {
		return nil, fmt.Errorf("%w: missing chunks", ErrMalformedArtifact)
	}

	payload := &ChunkPayload{
		Chunks: make([]Chunk, 0, len(*raw.Chunks)),
		Source: raw.Source,
	}
	seen := make(map[int]bool, len(*raw.Chunks))
	for i, c := range *raw.Chunks {
		if c.Index == nil || *c.Index < 0 {
			return nil, fmt.Errorf("%w: chunk %d has no valid index", ErrMalformedArtifact, i)
		}
		if c.Text == nil {
			return nil, fmt.Errorf("%w: chunk %d has no text", ErrMalformedArtifact, *c.Index)
		}
		if seen[*c.Index] {
			return nil, fmt.Errorf("%w: duplicate chunk index %d", ErrMalformedArtifact, *c.Index)
		}
		seen[*c.Index] = true
		payload.Chunks = append(payload.Chunks, Chunk{
			Index: *c.Index,
			Start: c.Start,
			End:   c.End,
			Text:  *c.Text,
		})
	}
	return payload, nil
}

// IngestRecord is everything one successful ingestion writes atomically
type IngestRecord struct {
	FileRef        *FileRef
	RawText        *Artifact
	Chunks         *Artifact
	Metadata       *Artifact
	ContentVersion string
	IngestedAt     time.Time
}

// Artifacts returns the three artifacts in write order.
func (r *IngestRecord) Artifacts() []*Artifact {
	return []*Artifact{r.RawText, r.Chunks, r.Metadata}
}

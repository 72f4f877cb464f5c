package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

const scenarioText = "Alpha beta gamma. Delta epsilon zeta."

// indexAll lists every file of the mock source
func indexAll(t *testing.T, f *testFixture) {
	t.Helper()
	ix := f.indexer(100, 0)
	for i := 0; i < 10; i++ {
		res, err := ix.Run(context.Background(), testOwner)
		if err != nil {
			t.Fatalf("index: %v", err)
		}
		if res.Done {
			return
		}
	}
	t.Fatal("listing did not finish")
}

func currentChunks(t *testing.T, f *testFixture, fileRefID string) *domain.ChunkPayload {
	t.Helper()
	artifacts, err := f.artifacts.ListCurrentChunkArtifacts(context.Background(), testOwner, fileRefID, 0, 10)
	if err != nil {
		t.Fatalf("list artifacts: %v", err)
	}
	if len(artifacts) != 1 {
		t.Fatalf("expected 1 current chunk artifact, got %d", len(artifacts))
	}
	payload, err := domain.DecodeChunkPayload(artifacts[0].ContentJSON)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return payload
}

func TestIngestor_IngestsAndChunks(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Greek letters", scenarioText, f.now)
	indexAll(t, f)

	res, err := f.ingestor(20, 5, 0).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 1 || res.Ingested != 1 || !res.Done {
		t.Errorf("unexpected result %+v", res)
	}
	if res.BytesProcessed != int64(len(scenarioText)) {
		t.Errorf("expected %d bytes, got %d", len(scenarioText), res.BytesProcessed)
	}

	ref := f.refs.GetByDriveID(testOwner, "file-1")
	if ref.ContentStatus != domain.ContentStatusIngested {
		t.Errorf("expected INGESTED, got %s", ref.ContentStatus)
	}
	if ref.ContentVersion != ref.CurrentContentVersion() {
		t.Errorf("expected content version %q, got %q", ref.CurrentContentVersion(), ref.ContentVersion)
	}
	if ref.IngestedAt == nil || !ref.IngestedAt.Equal(f.now) {
		t.Errorf("unexpected ingested at %v", ref.IngestedAt)
	}
	if f.artifacts.Count() != 3 {
		t.Errorf("expected 3 artifacts, got %d", f.artifacts.Count())
	}

	payload := currentChunks(t, f, ref.ID)
	want := []domain.Chunk{
		{Index: 0, Start: 0, End: 20, Text: "Alpha beta gamma. De"},
		{Index: 1, Start: 15, End: 35, Text: "a. Delta epsilon zet"},
		{Index: 2, Start: 30, End: 37, Text: "n zeta."},
	}
	if len(payload.Chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(payload.Chunks))
	}
	for i, c := range want {
		if payload.Chunks[i] != c {
			t.Errorf("chunk %d: expected %+v, got %+v", i, c, payload.Chunks[i])
		}
	}
	if payload.Source.DriveFileID != "file-1" || payload.Source.Name != "Greek letters" {
		t.Errorf("unexpected source %+v", payload.Source)
	}
}

func TestIngestor_IdempotentReingest(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Doc", scenarioText, f.now)
	indexAll(t, f)
	in := f.ingestor(20, 5, 0)
	ctx := context.Background()

	if _, err := in.Run(ctx, testOwner); err != nil {
		t.Fatalf("first run: %v", err)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	firstArtifact := ref.ChunksArtifactID

	if _, err := in.Requeue(ctx, testOwner, ref.ID); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	res, err := in.Run(ctx, testOwner)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Ingested != 1 {
		t.Errorf("expected requeued file ingested again, got %+v", res)
	}
	if f.artifacts.Count() != 3 {
		t.Errorf("expected unchanged content to reuse 3 artifacts, got %d", f.artifacts.Count())
	}
	ref = f.refs.GetByDriveID(testOwner, "file-1")
	if ref.ChunksArtifactID != firstArtifact {
		t.Errorf("expected current artifact %s kept, got %s", firstArtifact, ref.ChunksArtifactID)
	}
	if ref.ContentStatus != domain.ContentStatusIngested {
		t.Errorf("expected INGESTED, got %s", ref.ContentStatus)
	}

	res, err = in.Run(ctx, testOwner)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if res.Processed != 0 || !res.Done {
		t.Errorf("expected nothing pending, got %+v", res)
	}
}

func TestIngestor_ByteBudget(t *testing.T) {
	f := newTestFixture(t)
	text := strings.Repeat("x", 40)
	for i := 0; i < 3; i++ {
		f.addDoc(fmt.Sprintf("file-%d", i), "Doc", text, f.now)
	}
	indexAll(t, f)

	res, err := f.ingestor(100, 10, 100).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 2 || res.Ingested != 2 {
		t.Errorf("expected 2 files under a 100-byte budget, got %+v", res)
	}
	if res.BytesProcessed != 80 {
		t.Errorf("expected 80 bytes, got %d", res.BytesProcessed)
	}
	if res.Done {
		t.Error("expected one candidate left")
	}
	if len(f.source.FetchCalls) != 2 {
		t.Errorf("expected 2 downloads, got %v", f.source.FetchCalls)
	}
}

func TestIngestor_OversizedFileSkipped(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("big", "Big", strings.Repeat("y", 200), f.now)
	f.addDoc("small", "Small", "tiny", f.now)
	indexAll(t, f)

	res, err := f.ingestor(100, 10, 100).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Skipped != 1 || res.Ingested != 1 || !res.Done {
		t.Errorf("unexpected result %+v", res)
	}
	big := f.refs.GetByDriveID(testOwner, "big")
	if big.ContentStatus != domain.ContentStatusSkipped {
		t.Errorf("expected SKIPPED, got %s", big.ContentStatus)
	}
	if !strings.Contains(big.ContentLastError, "too large") {
		t.Errorf("unexpected reason %q", big.ContentLastError)
	}
	for _, id := range f.source.FetchCalls {
		if id == "big" {
			t.Error("oversized file must not be downloaded")
		}
	}
}

func TestIngestor_SkippedFetch(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Scan", "", f.now)
	f.source.SetSkipped("file-1", "PDF has no extractable text")
	indexAll(t, f)

	res, err := f.ingestor(100, 10, 0).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Skipped != 1 || res.BytesProcessed != 0 {
		t.Errorf("unexpected result %+v", res)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	if ref.ContentStatus != domain.ContentStatusSkipped || ref.ContentLastError != "PDF has no extractable text" {
		t.Errorf("unexpected ref content state %s %q", ref.ContentStatus, ref.ContentLastError)
	}
	if ref.ContentVersion != ref.CurrentContentVersion() {
		t.Errorf("expected content version recorded on skip")
	}
	if f.artifacts.Count() != 0 {
		t.Errorf("expected no artifacts, got %d", f.artifacts.Count())
	}
}

func TestIngestor_PerFileErrorsAreIsolated(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-a", "Broken", "unused", f.now)
	f.addDoc("file-b", "Fine", "hello world", f.now)
	f.source.SetFetchError("file-a", errors.New("export failed"))
	indexAll(t, f)

	res, err := f.ingestor(100, 10, 0).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Errored != 1 || res.Ingested != 1 || res.Processed != 2 {
		t.Errorf("unexpected result %+v", res)
	}
	if !res.Done {
		t.Error("errored files are not candidates, expected done")
	}
	broken := f.refs.GetByDriveID(testOwner, "file-a")
	if broken.ContentStatus != domain.ContentStatusError || broken.ContentLastError != "export failed" {
		t.Errorf("unexpected error state %s %q", broken.ContentStatus, broken.ContentLastError)
	}
}

func TestIngestor_CommitFailureMarksError(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Doc", "hello", f.now)
	indexAll(t, f)
	f.artifacts.CommitErr = errors.New("tx aborted")

	res, err := f.ingestor(100, 10, 0).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Errored != 1 {
		t.Errorf("expected 1 errored file, got %+v", res)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	if ref.ContentStatus != domain.ContentStatusError {
		t.Errorf("expected ERROR, got %s", ref.ContentStatus)
	}
}

func TestIngestor_DriveNotConnectedAborts(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Doc", "hello", f.now)
	indexAll(t, f)
	f.source.SetFetchError("file-1", domain.ErrDriveNotConnected)

	_, err := f.ingestor(100, 10, 0).Run(context.Background(), testOwner)
	if !errors.Is(err, domain.ErrDriveNotConnected) {
		t.Fatalf("expected ErrDriveNotConnected, got %v", err)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	if ref.ContentStatus != domain.ContentStatusPending {
		t.Errorf("expected file left PENDING, got %s", ref.ContentStatus)
	}
}

func TestIngestor_NormalisesBeforeChunking(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Doc", "\ufeffHello\x00 there", f.now)
	indexAll(t, f)

	if _, err := f.ingestor(100, 10, 0).Run(context.Background(), testOwner); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	payload := currentChunks(t, f, ref.ID)
	if len(payload.Chunks) != 1 || payload.Chunks[0].Text != "Hello there" {
		t.Errorf("expected normalised text, got %+v", payload.Chunks)
	}
}

func TestIngestor_Requeue(t *testing.T) {
	f := newTestFixture(t)
	f.addDoc("file-1", "Doc", "hello", f.now)
	f.source.AddFile(&domain.RemoteFile{ID: "img", Name: "photo", MimeType: "image/jpeg"})
	indexAll(t, f)
	in := f.ingestor(100, 10, 0)
	ctx := context.Background()

	if _, err := in.Run(ctx, testOwner); err != nil {
		t.Fatalf("Run: %v", err)
	}

	doc := f.refs.GetByDriveID(testOwner, "file-1")
	ref, err := in.Requeue(ctx, testOwner, doc.ID)
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if ref.ContentStatus != domain.ContentStatusPending {
		t.Errorf("expected PENDING, got %s", ref.ContentStatus)
	}

	img := f.refs.GetByDriveID(testOwner, "img")
	if _, err := in.Requeue(ctx, testOwner, img.ID); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for unsupported file, got %v", err)
	}
	if _, err := in.Requeue(ctx, testOwner, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := in.Requeue(ctx, "someone-else", doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another owner, got %v", err)
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
)

func TestIndexer_AdvancesCursorPerPage(t *testing.T) {
	f := newTestFixture(t)
	for i := 0; i < 5; i++ {
		f.addDoc(fmt.Sprintf("file-%d", i), fmt.Sprintf("Doc %d", i), "text", f.now)
	}
	ix := f.indexer(2, 0)
	ctx := context.Background()

	wantCursors := []string{"2", "4", ""}
	for run, want := range wantCursors {
		res, err := ix.Run(ctx, testOwner)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if res.Cursor != want {
			t.Errorf("run %d: expected cursor %q, got %q", run, want, res.Cursor)
		}
		if res.Done != (run == len(wantCursors)-1) {
			t.Errorf("run %d: unexpected done=%v", run, res.Done)
		}
	}

	if f.refs.Count() != 5 {
		t.Errorf("expected 5 refs, got %d", f.refs.Count())
	}
	state, err := f.states.Get(ctx, testOwner)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.LastRunAt == nil || !state.LastRunAt.Equal(f.now) {
		t.Errorf("expected last run at %v, got %v", f.now, state.LastRunAt)
	}
	if state.Stats.Processed != 1 || state.Stats.NewOrUpdated != 1 {
		t.Errorf("unexpected stats for final run: %+v", state.Stats)
	}
}

func TestIndexer_ResumesInsidePageOnByteBudget(t *testing.T) {
	f := newTestFixture(t)
	for i := 0; i < 3; i++ {
		f.source.AddFile(&domain.RemoteFile{
			ID:        fmt.Sprintf("file-%d", i),
			Name:      "Report",
			MimeType:  domain.MimePDF,
			SizeBytes: int64Ptr(100),
		})
	}
	ix := f.indexer(3, 150)
	ctx := context.Background()

	for run := 0; run < 3; run++ {
		res, err := ix.Run(ctx, testOwner)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if res.Processed != 1 {
			t.Errorf("run %d: expected 1 file under the byte budget, got %d", run, res.Processed)
		}
		state, _ := f.states.Get(ctx, testOwner)
		if run < 2 {
			if res.Done {
				t.Errorf("run %d: page is not finished yet", run)
			}
			if want := fmt.Sprintf("file-%d", run); state.LastFileID != want {
				t.Errorf("run %d: expected last file %q, got %q", run, want, state.LastFileID)
			}
			if state.Cursor != "" {
				t.Errorf("run %d: cursor must not advance mid-page, got %q", run, state.Cursor)
			}
		} else {
			if !res.Done {
				t.Error("expected done after the last file of the last page")
			}
			if state.LastFileID != "" {
				t.Errorf("expected last file cleared, got %q", state.LastFileID)
			}
		}
	}

	if f.refs.Count() != 3 {
		t.Errorf("expected 3 refs, got %d", f.refs.Count())
	}
	if f.source.ListCalls != 3 {
		t.Errorf("expected one listing call per run, got %d", f.source.ListCalls)
	}
}

func TestIndexer_OversizedFileStillProgresses(t *testing.T) {
	f := newTestFixture(t)
	f.source.AddFile(&domain.RemoteFile{
		ID:        "huge",
		Name:      "Huge",
		MimeType:  domain.MimePDF,
		SizeBytes: int64Ptr(10 * 1024 * 1024),
	})

	res, err := f.indexer(5, 1024).Run(context.Background(), testOwner)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Processed != 1 || !res.Done {
		t.Errorf("expected the oversized file recorded and listing done, got %+v", res)
	}
}

func TestIndexer_NewOrUpdatedCountsVersionChanges(t *testing.T) {
	f := newTestFixture(t)
	modified := f.now.Add(-time.Hour)
	file := &domain.RemoteFile{
		ID:           "file-1",
		Name:         "Notes",
		MimeType:     domain.MimeGoogleDoc,
		ModifiedTime: &modified,
	}
	f.source.AddFile(file)
	ix := f.indexer(10, 0)
	ctx := context.Background()

	res, err := ix.Run(ctx, testOwner)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if res.NewOrUpdated != 1 {
		t.Errorf("expected 1 new file, got %d", res.NewOrUpdated)
	}

	res, err = ix.Run(ctx, testOwner)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Processed != 1 || res.NewOrUpdated != 0 {
		t.Errorf("expected unchanged listing, got %+v", res)
	}

	later := f.now
	file.ModifiedTime = &later
	res, err = ix.Run(ctx, testOwner)
	if err != nil {
		t.Fatalf("third run: %v", err)
	}
	if res.NewOrUpdated != 1 {
		t.Errorf("expected 1 updated file, got %d", res.NewOrUpdated)
	}
	ref := f.refs.GetByDriveID(testOwner, "file-1")
	if ref.Status != domain.FileStatusIndexed {
		t.Errorf("expected INDEXED after relisting, got %s", ref.Status)
	}
}

func TestIndexer_UnsupportedTypesAreSkipped(t *testing.T) {
	f := newTestFixture(t)
	f.source.AddFile(&domain.RemoteFile{ID: "img", Name: "photo.png", MimeType: "image/png"})
	f.source.AddFile(&domain.RemoteFile{ID: "blank"})

	if _, err := f.indexer(10, 0).Run(context.Background(), testOwner); err != nil {
		t.Fatalf("Run: %v", err)
	}

	img := f.refs.GetByDriveID(testOwner, "img")
	if img.Status != domain.FileStatusSkipped || img.ContentStatus != domain.ContentStatusSkipped {
		t.Errorf("expected SKIPPED/SKIPPED, got %s/%s", img.Status, img.ContentStatus)
	}
	if img.LastError != "Unsupported mime type: image/png" {
		t.Errorf("unexpected reason %q", img.LastError)
	}

	blank := f.refs.GetByDriveID(testOwner, "blank")
	if blank.Name != domain.UntitledFileName || blank.MimeType != domain.MimeUnknown {
		t.Errorf("expected listing defaults, got name %q mime %q", blank.Name, blank.MimeType)
	}
}

func TestIndexer_Errors(t *testing.T) {
	t.Run("empty owner", func(t *testing.T) {
		f := newTestFixture(t)
		if _, err := f.indexer(0, 0).Run(context.Background(), ""); !errors.Is(err, domain.ErrUnauthorized) {
			t.Errorf("expected ErrUnauthorized, got %v", err)
		}
	})

	t.Run("listing failure keeps state", func(t *testing.T) {
		f := newTestFixture(t)
		f.source.ListErr = domain.ErrDriveNotConnected
		_, err := f.indexer(0, 0).Run(context.Background(), testOwner)
		if !errors.Is(err, domain.ErrDriveNotConnected) {
			t.Errorf("expected ErrDriveNotConnected, got %v", err)
		}
		if _, err := f.states.Get(context.Background(), testOwner); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected no saved state, got %v", err)
		}
	})

	t.Run("upsert failure keeps cursor", func(t *testing.T) {
		f := newTestFixture(t)
		f.addDoc("file-1", "Doc", "text", f.now)
		f.refs.UpsertErr = errors.New("db down")
		if _, err := f.indexer(0, 0).Run(context.Background(), testOwner); err == nil {
			t.Fatal("expected error")
		}
		if _, err := f.states.Get(context.Background(), testOwner); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected no saved state, got %v", err)
		}
	})
}

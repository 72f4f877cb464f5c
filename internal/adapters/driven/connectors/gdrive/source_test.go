package gdrive

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven/mocks"
)

type stubExtractor struct {
	text string
	got  []byte
}

func (e *stubExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	e.got = data
	return e.text, nil
}

func (e *stubExtractor) Supports(mimeType string) bool {
	return mimeType == domain.MimePDF
}

type driveFixture struct {
	srv    *httptest.Server
	creds  *mocks.MockCredentialStore
	source *Source
	mux    *http.ServeMux
}

func newDriveFixture(t *testing.T, extractor *stubExtractor) *driveFixture {
	t.Helper()
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	creds := mocks.NewMockCredentialStore()
	cfg := Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     srv.URL + "/token",
		Endpoint:     srv.URL + "/drive/v3/",
		Credentials:  creds,
		HTTPClient:   srv.Client(),
	}
	if extractor != nil {
		cfg.Extractor = extractor
	}
	return &driveFixture{srv: srv, creds: creds, source: NewSource(cfg), mux: mux}
}

func (f *driveFixture) connect(t *testing.T, accessToken string, expiry time.Time) {
	t.Helper()
	require.NoError(t, f.creds.Save(context.Background(), &domain.DriveCredentials{
		OwnerID:      "owner-1",
		AccessToken:  accessToken,
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       &expiry,
	}))
}

func requireBearer(t *testing.T, r *http.Request, token string) {
	t.Helper()
	assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
}

func TestSource_ListFiles(t *testing.T) {
	f := newDriveFixture(t, nil)
	f.connect(t, "tok-1", time.Now().Add(time.Hour))

	f.mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "tok-1")
		q := r.URL.Query()
		assert.Equal(t, "trashed = false", q.Get("q"))
		assert.Equal(t, "25", q.Get("pageSize"))
		assert.Equal(t, listFields, q.Get("fields"))
		assert.Equal(t, "true", q.Get("supportsAllDrives"))
		assert.Equal(t, "true", q.Get("includeItemsFromAllDrives"))
		assert.Equal(t, "page-2", q.Get("pageToken"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"nextPageToken": "page-3",
			"files": [
				{"id": "f1", "name": "Roadmap", "mimeType": "application/vnd.google-apps.document", "modifiedTime": "2026-01-02T03:04:05.000Z"},
				{"id": "f2", "name": "notes.txt", "mimeType": "text/plain", "size": "11", "md5Checksum": "abc123"}
			]
		}`))
	})

	files, next, err := f.source.ListFiles(context.Background(), "owner-1", "page-2", 25)
	require.NoError(t, err)
	assert.Equal(t, "page-3", next)
	require.Len(t, files, 2)

	assert.Equal(t, "f1", files[0].ID)
	assert.Equal(t, domain.MimeGoogleDoc, files[0].MimeType)
	assert.Nil(t, files[0].SizeBytes)
	require.NotNil(t, files[0].ModifiedTime)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), *files[0].ModifiedTime)

	require.NotNil(t, files[1].SizeBytes)
	assert.Equal(t, int64(11), *files[1].SizeBytes)
	assert.Equal(t, "abc123", files[1].Checksum)
	assert.Nil(t, files[1].ModifiedTime)
}

func TestSource_NotConnected(t *testing.T) {
	f := newDriveFixture(t, nil)

	_, _, err := f.source.ListFiles(context.Background(), "owner-1", "", 10)
	assert.ErrorIs(t, err, domain.ErrDriveNotConnected)

	_, err = f.source.FetchText(context.Background(), "owner-1", "f1", domain.MimeGoogleDoc)
	assert.ErrorIs(t, err, domain.ErrDriveNotConnected)
}

func TestSource_ListFiles_DriveError(t *testing.T) {
	f := newDriveFixture(t, nil)
	f.connect(t, "tok-1", time.Now().Add(time.Hour))

	f.mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "message": "The user does not have sufficient permissions"}}`))
	})

	_, _, err := f.source.ListFiles(context.Background(), "owner-1", "", 10)
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "Unable to list Google Drive files.", apiErr.Message)
}

func TestSource_FetchText(t *testing.T) {
	extractor := &stubExtractor{text: "pdf body"}
	f := newDriveFixture(t, extractor)
	f.connect(t, "tok-1", time.Now().Add(time.Hour))

	f.mux.HandleFunc("/drive/v3/files/doc-1/export", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "tok-1")
		assert.Equal(t, exportTextMime, r.URL.Query().Get("mimeType"))
		_, _ = w.Write([]byte("Quarterly plan"))
	})
	f.mux.HandleFunc("/drive/v3/files/txt-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "media", r.URL.Query().Get("alt"))
		_, _ = w.Write([]byte("héllo"))
	})
	f.mux.HandleFunc("/drive/v3/files/pdf-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	})

	ctx := context.Background()
	doc, err := f.source.FetchText(ctx, "owner-1", "doc-1", domain.MimeGoogleDoc)
	require.NoError(t, err)
	assert.Equal(t, domain.TextStatusOK, doc.Status)
	assert.Equal(t, "Quarterly plan", doc.Text)
	assert.Equal(t, int64(14), doc.Bytes)

	txt, err := f.source.FetchText(ctx, "owner-1", "txt-1", domain.MimePlainText)
	require.NoError(t, err)
	assert.Equal(t, "héllo", txt.Text)
	assert.Equal(t, int64(6), txt.Bytes)

	pdf, err := f.source.FetchText(ctx, "owner-1", "pdf-1", domain.MimePDF)
	require.NoError(t, err)
	assert.Equal(t, "pdf body", pdf.Text)
	assert.Equal(t, int64(13), pdf.Bytes)
	assert.Equal(t, []byte("%PDF-1.4 fake"), extractor.got)
}

func TestSource_FetchText_Skipped(t *testing.T) {
	f := newDriveFixture(t, nil)

	tests := []struct {
		mimeType string
		reason   string
	}{
		{domain.MimeGoogleSheet, ReasonSheetsPending},
		{domain.MimeGoogleSlides, ReasonSlidesPending},
		{domain.MimePDF, ReasonPDFPending},
		{"image/png", "Unsupported mime type: image/png"},
	}

	for _, tt := range tests {
		t.Run(tt.mimeType, func(t *testing.T) {
			// No credentials are needed for a skip
			res, err := f.source.FetchText(context.Background(), "owner-1", "x", tt.mimeType)
			require.NoError(t, err)
			assert.Equal(t, domain.TextStatusSkipped, res.Status)
			assert.Equal(t, tt.reason, res.Reason)
		})
	}
}

func TestSource_FetchText_DownloadError(t *testing.T) {
	f := newDriveFixture(t, nil)
	f.connect(t, "tok-1", time.Now().Add(time.Hour))

	f.mux.HandleFunc("/drive/v3/files/txt-1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := f.source.FetchText(context.Background(), "owner-1", "txt-1", domain.MimePlainText)
	var apiErr *domain.ExternalAPIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "Unable to download text file.", apiErr.Message)
}

func TestSource_RefreshesExpiredToken(t *testing.T) {
	f := newDriveFixture(t, nil)
	f.connect(t, "stale", time.Now().Add(30*time.Second))

	refreshes := 0
	f.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		refreshes++
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token": "tok-2", "expires_in": 3600, "token_type": "Bearer"}`))
	})
	f.mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		requireBearer(t, r, "tok-2")
		_, _ = w.Write([]byte(`{"files": []}`))
	})

	ctx := context.Background()
	_, _, err := f.source.ListFiles(ctx, "owner-1", "", 10)
	require.NoError(t, err)

	stored, err := f.creds.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	require.NotNil(t, stored.Expiry)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *stored.Expiry, time.Minute)

	// The persisted token is reused
	_, _, err = f.source.ListFiles(ctx, "owner-1", "", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshes)
}

func TestSource_RevokedRefreshToken(t *testing.T) {
	f := newDriveFixture(t, nil)
	f.connect(t, "", time.Now().Add(-time.Hour))

	f.mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been expired or revoked."}`))
	})

	_, _, err := f.source.ListFiles(context.Background(), "owner-1", "", 10)
	assert.ErrorIs(t, err, domain.ErrDriveNotConnected)
}

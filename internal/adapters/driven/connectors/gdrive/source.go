// Package gdrive lists and downloads an owner's Google Drive files.
package gdrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/custodia-labs/timeline-core/internal/core/domain"
	"github.com/custodia-labs/timeline-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.FileSource = (*Source)(nil)

const (
	listFields     = "nextPageToken,files(id,name,mimeType,modifiedTime,size,md5Checksum)"
	exportTextMime = "text/plain"
	nativePrefix   = "application/vnd.google-apps."
	driveService   = "google drive"
)

// Static skip reasons
const (
	ReasonSheetsPending = "Sheets ingestion pending."
	ReasonSlidesPending = "Slides ingestion pending."
	ReasonPDFPending    = "PDF extraction pending."
)

// Config holds configuration for the Drive source
type Config struct {
	ClientID     string
	ClientSecret string

	// TokenURL overrides the Google token endpoint
	TokenURL string

	// Endpoint overrides the Drive API base URL (tests)
	Endpoint string

	Credentials driven.CredentialStore

	// Extractor turns downloaded PDFs into text; nil leaves PDFs skipped
	Extractor driven.TextExtractor

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Source implements driven.FileSource against Google Drive v3
type Source struct {
	tokens     *tokenService
	endpoint   string
	extractor  driven.TextExtractor
	httpClient *http.Client
	logger     *slog.Logger
}

// NewSource creates a Drive source
func NewSource(cfg Config) *Source {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	endpoint := google.Endpoint
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	return &Source{
		tokens: &tokenService{
			creds: cfg.Credentials,
			oauth: &oauth2.Config{
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Endpoint:     endpoint,
				Scopes:       []string{drive.DriveReadonlyScope},
			},
			now:    time.Now,
			logger: cfg.Logger,
		},
		endpoint:   cfg.Endpoint,
		extractor:  cfg.Extractor,
		httpClient: cfg.HTTPClient,
		logger:     cfg.Logger,
	}
}

// service builds a Drive client authorised as ownerID
func (s *Source) service(ctx context.Context, ownerID string) (*drive.Service, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	tok, err := s.tokens.token(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.StaticTokenSource(tok)))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create drive client: %w", err)
	}
	return srv, nil
}

// ListFiles returns one page of the owner's non-trashed files
func (s *Source) ListFiles(ctx context.Context, ownerID, pageToken string, pageSize int) ([]*domain.RemoteFile, string, error) {
	srv, err := s.service(ctx, ownerID)
	if err != nil {
		return nil, "", err
	}

	call := srv.Files.List().
		Q("trashed = false").
		Fields(listFields).
		PageSize(int64(pageSize)).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	list, err := call.Do()
	if err != nil {
		return nil, "", driveError(ctx, err, "Unable to list Google Drive files.")
	}

	files := make([]*domain.RemoteFile, 0, len(list.Files))
	for _, f := range list.Files {
		files = append(files, toRemoteFile(f))
	}
	return files, list.NextPageToken, nil
}

// FetchText exports or downloads the file as plain text
func (s *Source) FetchText(ctx context.Context, ownerID, fileID, mimeType string) (*domain.TextResult, error) {
	switch mimeType {
	case domain.MimeGoogleSheet:
		return domain.TextSkipped(ReasonSheetsPending), nil
	case domain.MimeGoogleSlides:
		return domain.TextSkipped(ReasonSlidesPending), nil
	case domain.MimePDF:
		if s.extractor == nil || !s.extractor.Supports(mimeType) {
			return domain.TextSkipped(ReasonPDFPending), nil
		}
	case domain.MimeGoogleDoc, domain.MimePlainText:
	default:
		return domain.TextSkipped(domain.UnsupportedMimeTypeReason(mimeType)), nil
	}

	srv, err := s.service(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	switch mimeType {
	case domain.MimeGoogleDoc:
		resp, err := srv.Files.Export(fileID, exportTextMime).Context(ctx).Download()
		if err != nil {
			return nil, driveError(ctx, err, "Unable to export Google Doc.")
		}
		data, err := readBody(resp)
		if err != nil {
			return nil, driveError(ctx, err, "Unable to export Google Doc.")
		}
		return domain.TextOK(string(data), int64(len(data))), nil

	case domain.MimePlainText:
		data, err := s.download(ctx, srv, fileID, "Unable to download text file.")
		if err != nil {
			return nil, err
		}
		return domain.TextOK(string(data), int64(len(data))), nil

	default:
		data, err := s.download(ctx, srv, fileID, "Unable to download PDF file.")
		if err != nil {
			return nil, err
		}
		text, err := s.extractor.Extract(ctx, data, mimeType)
		if err != nil {
			return nil, fmt.Errorf("failed to extract pdf text: %w", err)
		}
		s.logger.Debug("pdf text extracted", "owner_id", ownerID, "drive_file_id", fileID, "bytes", len(data), "chars", len(text))
		return domain.TextOK(text, int64(len(data))), nil
	}
}

func (s *Source) download(ctx context.Context, srv *drive.Service, fileID, failure string) ([]byte, error) {
	resp, err := srv.Files.Get(fileID).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, driveError(ctx, err, failure)
	}
	data, err := readBody(resp)
	if err != nil {
		return nil, driveError(ctx, err, failure)
	}
	return data, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func toRemoteFile(f *drive.File) *domain.RemoteFile {
	file := &domain.RemoteFile{
		ID:       f.Id,
		Name:     f.Name,
		MimeType: f.MimeType,
		Checksum: f.Md5Checksum,
	}
	if f.ModifiedTime != "" {
		if t, err := time.Parse(time.RFC3339, f.ModifiedTime); err == nil {
			t = t.UTC()
			file.ModifiedTime = &t
		}
	}
	// Native Google files report no size
	if !strings.HasPrefix(f.MimeType, nativePrefix) {
		size := f.Size
		file.SizeBytes = &size
	}
	return file
}

// driveError maps client failures to domain errors. Token failures pass
// through unchanged so a missing connection stays recognisable.
func driveError(ctx context.Context, err error, message string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, domain.ErrDriveNotConnected) || errors.Is(err, domain.ErrExternalAPI) {
		return err
	}
	apiErr := &domain.ExternalAPIError{Service: driveService, Message: message}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		apiErr.StatusCode = gerr.Code
	}
	return apiErr
}

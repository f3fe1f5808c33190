// Package drive implements the Google Drive storage provider.
package drive

import (
	"context"
	"errors"
	"log"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cloudintake/sentinel/internal/provider"
)

// DefaultMaxUploadBytes caps single-request uploads. Drive accepts far more
// via resumable uploads, but the intake portal stages files locally and 100MB
// is the product ceiling.
const DefaultMaxUploadBytes = 100 * 1024 * 1024

// Provider uploads intake files to Google Drive.
type Provider struct {
	limiter        *RateLimiter
	maxUploadBytes int64
}

// New creates a Drive provider. A non-positive maxUploadBytes falls back to
// the default cap.
func New(maxUploadBytes int64) *Provider {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	return &Provider{
		limiter:        NewRateLimiter(),
		maxUploadBytes: maxUploadBytes,
	}
}

// ID implements provider.StorageProvider.
func (p *Provider) ID() string { return "google_drive" }

// Limits implements provider.StorageProvider.
func (p *Provider) Limits() provider.Limits {
	return provider.Limits{MaxUploadBytes: p.maxUploadBytes}
}

// service builds a Drive client bound to a single access token. The token
// manager owns refresh; the static source here must never trigger one.
func (p *Provider) service(ctx context.Context, accessToken string) (*drive.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return drive.NewService(ctx, option.WithTokenSource(ts))
}

// Upload implements provider.StorageProvider.
func (p *Provider) Upload(ctx context.Context, accessToken string, req provider.UploadRequest) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", wrapError(err)
	}

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return "", wrapError(err)
	}

	meta := &drive.File{Name: req.FileName}
	if req.Folder != "" {
		meta.Parents = []string{req.Folder}
	}

	call := svc.Files.Create(meta).Context(ctx)
	if req.Body != nil {
		call = call.Media(req.Body, googleapi.ContentType(req.MimeType))
	}

	file, err := call.Do()
	if err != nil {
		p.recordRateLimit(err)
		return "", wrapError(err)
	}

	return file.Id, nil
}

// Probe implements provider.StorageProvider with a minimal About query.
func (p *Provider) Probe(ctx context.Context, accessToken string) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return wrapError(err)
	}

	svc, err := p.service(ctx, accessToken)
	if err != nil {
		return wrapError(err)
	}

	if _, err := svc.About.Get().Fields("user").Context(ctx).Do(); err != nil {
		p.recordRateLimit(err)
		return wrapError(err)
	}
	return nil
}

// recordRateLimit feeds 429 responses into the limiter's backoff window.
func (p *Provider) recordRateLimit(err error) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == 429 {
		delay := RetryDelayFromError(gerr)
		p.limiter.RecordRateLimitError(delay)
		log.Printf("[Drive] Rate limited, backing off %s", delay)
	}
}

// wrapError normalizes Drive API and transport errors into a provider.Fault
// so the classifier sees uniform (status, message) inputs.
func wrapError(err error) error {
	if err == nil {
		return nil
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return &provider.Fault{StatusCode: gerr.Code, Message: gerr.Message}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &provider.Fault{Message: "request timeout exceeded"}
	}

	// DNS, TLS and socket errors arrive as plain transport errors whose
	// text the classifier matches on ("connection", "timeout", ...).
	return &provider.Fault{Message: err.Error()}
}

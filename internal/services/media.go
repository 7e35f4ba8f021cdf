package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/xenastore/storefront/internal/metrics"
	"go.opentelemetry.io/otel/attribute"
)

// MediaConfig describes the Cloudinary account product images go to.
// CloudinaryURL has the form cloudinary://<key>:<secret>@<cloud name>.
// UploadPrefix overrides the API host and is empty in production.
type MediaConfig struct {
	CloudinaryURL string
	UploadPreset  string
	Folder        string
	UploadPrefix  string
	MaxBytes      int64
}

// MediaService proxies admin image uploads to Cloudinary
type MediaService struct {
	cld     *cloudinary.Cloudinary
	cfg     MediaConfig
	metrics *metrics.AppMetrics
}

// NewMediaService creates a new media service. Without a CloudinaryURL the
// service exists but every upload reports ErrUnavailable.
func NewMediaService(cfg MediaConfig, metrics *metrics.AppMetrics) (*MediaService, error) {
	s := &MediaService{cfg: cfg, metrics: metrics}
	if cfg.CloudinaryURL == "" {
		return s, nil
	}

	cld, err := cloudinary.NewFromURL(cfg.CloudinaryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid cloudinary url: %w", err)
	}
	if cfg.UploadPrefix != "" {
		cld.Upload.Config.API.UploadPrefix = cfg.UploadPrefix
	}
	s.cld = cld
	return s, nil
}

// Upload sends an image to Cloudinary and returns its public URL
func (s *MediaService) Upload(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if s.cld == nil {
		return "", fmt.Errorf("%w: media uploads are not configured", ErrUnavailable)
	}

	data, err := io.ReadAll(io.LimitReader(r, s.cfg.MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return "", invalidf("file exceeds %d bytes", s.cfg.MaxBytes)
	}
	if len(data) == 0 {
		return "", invalidf("file is empty")
	}

	sniffed := http.DetectContentType(data)
	if !strings.HasPrefix(sniffed, "image/") || (contentType != "" && !strings.HasPrefix(contentType, "image/")) {
		return "", invalidf("only image uploads are allowed")
	}

	start := time.Now()
	resp, err := s.cld.Upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		UploadPreset: s.cfg.UploadPreset,
		Folder:       s.cfg.Folder,
	})
	if err == nil && resp == nil {
		err = errors.New("empty response")
	}
	s.recordUpload(ctx, start, err == nil && resp.Error.Message == "")
	if err != nil {
		return "", fmt.Errorf("failed to upload to media host: %w", err)
	}
	if resp.Error.Message != "" {
		return "", fmt.Errorf("media host rejected upload: %s", resp.Error.Message)
	}

	url := resp.SecureURL
	if url == "" {
		url = resp.URL
	}
	if url == "" {
		return "", fmt.Errorf("media host response has no url")
	}

	slog.InfoContext(ctx, "image uploaded", "filename", filename, "bytes", len(data), "url", url)
	return url, nil
}

func (s *MediaService) recordUpload(ctx context.Context, start time.Time, success bool) {
	s.metrics.MediaUploadDuration.Record(ctx, float64(time.Since(start).Milliseconds()),
		s.metrics.Attrs(attribute.Bool("success", success)))
}

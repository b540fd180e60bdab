// Package cloudinary stores teaching materials uploaded for lesson plan sessions.
package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/rs/zerolog"
)

// ErrNotConfigured is returned by New when credentials are missing.
var ErrNotConfigured = errors.New("cloudinary credentials must be provided")

// Uploads use resource type "auto", so a stored asset may live under any of these.
var resourceTypes = []string{"image", "raw", "video"}

type Config struct {
	CloudName string
	APIKey    string
	APISecret string
	// Folder is the root every session folder is created under.
	Folder  string
	Timeout time.Duration
}

// Asset describes a stored material.
type Asset struct {
	URL          string
	PublicID     string
	ResourceType string
	Format       string
	Bytes        int
}

// Service uploads and removes materials on one Cloudinary account.
type Service struct {
	client  *cloudinary.Cloudinary
	root    string
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time
}

func New(cfg Config, logger zerolog.Logger) (*Service, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrNotConfigured
	}
	client, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("cloudinary client: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Service{
		client:  client,
		root:    strings.Trim(cfg.Folder, "/"),
		timeout: timeout,
		logger:  logger.With().Str("component", "cloudinary").Logger(),
		now:     time.Now,
	}, nil
}

// SessionFolder is where the materials of one lesson plan session are kept, relative to the root.
func SessionFolder(lessonPlanID uint, sessionNumber int) string {
	return fmt.Sprintf("lesson-plans/%d/session-%d", lessonPlanID, sessionNumber)
}

// Upload stores reader under root/subfolder. The public id is derived from name plus a
// timestamp so re-uploads of a file with the same name never overwrite each other.
func (s *Service) Upload(ctx context.Context, subfolder, name string, reader io.Reader) (Asset, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	folder := strings.Trim(path.Join(s.root, strings.Trim(subfolder, "/")), "/")
	overwrite := false
	result, err := s.client.Upload.Upload(ctx, reader, uploader.UploadParams{
		Folder:       folder,
		PublicID:     publicID(name, s.now()),
		ResourceType: "auto",
		Overwrite:    &overwrite,
		Tags:         api.CldAPIArray{"teachmate", "lesson-material"},
	})
	if err != nil {
		return Asset{}, fmt.Errorf("upload %s: %w", name, err)
	}
	if result.Error.Message != "" {
		return Asset{}, fmt.Errorf("upload %s rejected: %s", name, result.Error.Message)
	}

	s.logger.Info().
		Str("public_id", result.PublicID).
		Str("resource_type", result.ResourceType).
		Int("bytes", result.Bytes).
		Msg("material stored")

	return Asset{
		URL:          result.SecureURL,
		PublicID:     result.PublicID,
		ResourceType: result.ResourceType,
		Format:       result.Format,
		Bytes:        result.Bytes,
	}, nil
}

// Delete removes the asset whatever resource type it was stored as. A missing asset is not
// an error.
func (s *Service) Delete(ctx context.Context, publicID string) error {
	if strings.TrimSpace(publicID) == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	invalidate := true
	for _, resourceType := range resourceTypes {
		result, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{
			PublicID:     publicID,
			ResourceType: resourceType,
			Invalidate:   &invalidate,
		})
		if err != nil {
			return fmt.Errorf("destroy %s: %w", publicID, err)
		}
		if result.Error.Message != "" {
			return fmt.Errorf("destroy %s rejected: %s", publicID, result.Error.Message)
		}
		if result.Result == "ok" {
			s.logger.Info().Str("public_id", publicID).Str("resource_type", resourceType).Msg("material removed")
			return nil
		}
	}
	return nil
}

// publicID turns a file name into a URL-safe id stem suffixed with the upload time.
func publicID(name string, at time.Time) string {
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(stem) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	clean := strings.TrimRight(b.String(), "-")
	if clean == "" {
		clean = "material"
	}
	return fmt.Sprintf("%s-%d", clean, at.Unix())
}

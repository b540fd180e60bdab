package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/observability"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/cloudinary"
)

var (
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
	// ErrUploadMissing indicates the multipart form carried no file.
	ErrUploadMissing = errors.New("file is required")
)

var allowedMaterialTypes = map[string]struct{}{
	"application/pdf": {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/msword":                                                        {},
	"text/plain":                                                                {},
	"image":                                                                     {},
	"video/mp4":                                                                 {},
}

// MaterialStorage abstracts the upload destination.
type MaterialStorage interface {
	Upload(ctx context.Context, subfolder, name string, reader io.Reader) (cloudinary.Asset, error)
	Delete(ctx context.Context, publicID string) error
}

// MaterialCleaner drops the stored files of a deleted lesson plan.
type MaterialCleaner interface {
	RemoveLessonPlanMaterials(ctx context.Context, lessonPlanID uint) (int, error)
}

// UploadService validates teaching materials, stores them and attaches them to a session.
type UploadService interface {
	MaterialCleaner
	UploadMaterial(ctx context.Context, lessonPlanID uint, sessionNumber int, payload dto.MaterialUploadRequest, file *multipart.FileHeader) (dto.MaterialResponse, error)
	ListMaterials(ctx context.Context, lessonPlanID uint, sessionNumber int) ([]dto.MaterialResponse, error)
}

type uploadService struct {
	storage   MaterialStorage
	materials repository.MaterialRepository
	plans     repository.LessonPlanRepository
	logger    zerolog.Logger
	maxSize   int64
	tracer    trace.Tracer
}

// NewUploadService constructs an upload service. A nil storage rejects every upload with
// ErrProviderUnavailable.
func NewUploadService(storage MaterialStorage, materials repository.MaterialRepository, plans repository.LessonPlanRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage:   storage,
		materials: materials,
		plans:     plans,
		logger:    logger.With().Str("component", "upload_service").Logger(),
		maxSize:   int64(maxSizeMB) * 1024 * 1024,
		tracer:    otel.Tracer("github.com/noah-isme/teachmate-api/internal/service/upload"),
	}
}

func (s *uploadService) UploadMaterial(ctx context.Context, lessonPlanID uint, sessionNumber int, payload dto.MaterialUploadRequest, file *multipart.FileHeader) (dto.MaterialResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.material", trace.WithAttributes(
		attribute.Int64("lesson_plan.id", int64(lessonPlanID)),
		attribute.Int("session.number", sessionNumber),
		attribute.Int64("upload.max_bytes", s.maxSize),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	fail := func(reason string, err error) (dto.MaterialResponse, error) {
		if reason != "" {
			observability.UploadRejected().WithLabelValues(reason).Inc()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return dto.MaterialResponse{}, err
	}

	if file == nil {
		return fail("", ErrUploadMissing)
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	plan, err := s.plans.GetByID(ctx, lessonPlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fail("", ErrLessonPlanNotFound)
		}
		return fail("", err)
	}
	session := plan.SessionByNumber(sessionNumber)
	if session == nil {
		return fail("", ErrSessionNotFound)
	}
	if s.storage == nil {
		return fail("storage", externalError("cloudinary", ErrProviderUnavailable))
	}

	if file.Size > s.maxSize {
		return fail("size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		return fail("", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		return fail("", err)
	}
	if int64(buf.Len()) > s.maxSize {
		return fail("size", ErrUploadTooLarge)
	}

	fileType := normalizeMime(mimetype.Detect(buf.Bytes()).String())
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if _, ok := allowedMaterialTypes[fileType]; !ok {
		return fail("type", fmt.Errorf("%w: %s", ErrInvalidFileType, fileType))
	}
	if err := s.scan(buf.Bytes(), fileType); err != nil {
		return fail("scan", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	checksum := hex.EncodeToString(sum[:])
	existing, err := s.materials.FindByChecksum(ctx, lessonPlanID, sessionNumber, checksum)
	if err != nil {
		return fail("", err)
	}
	if existing != nil {
		// same bytes already attached to this session
		span.SetStatus(codes.Ok, "duplicate")
		return dto.NewMaterialResponse(*existing), nil
	}

	sanitizedName := sanitizeFileName(file.Filename)
	folder := cloudinary.SessionFolder(lessonPlanID, sessionNumber)

	asset, err := s.storage.Upload(ctx, folder, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return fail("storage", externalError("cloudinary", err))
	}

	title := strings.TrimSpace(payload.Title)
	if title == "" {
		title = strings.TrimSpace(file.Filename)
	}
	material := models.Material{
		LessonPlanID:  lessonPlanID,
		SessionNumber: sessionNumber,
		TeacherID:     payload.TeacherID,
		Title:         title,
		FileName:      sanitizedName,
		URL:           asset.URL,
		PublicID:      asset.PublicID,
		MimeType:      fileType,
		SizeBytes:     int64(buf.Len()),
		Checksum:      checksum,
	}
	if err := s.materials.Create(ctx, &material); err != nil {
		return fail("", err)
	}

	resource := models.SessionResource{
		Kind:        models.ResourceKindMaterial,
		Title:       title,
		URL:         asset.URL,
		ContentType: fileType,
	}
	if _, err := s.plans.EditSessionContent(ctx, session.ID, func(stored *models.LessonPlanSession) {
		stored.Resources = append(stored.Resources, resource)
	}); err != nil {
		return fail("", err)
	}

	observability.UploadRequests().WithLabelValues(fileType).Inc()
	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().
		Uint("lesson_plan_id", lessonPlanID).
		Int("session_number", sessionNumber).
		Str("public_id", asset.PublicID).
		Msg("material uploaded")

	return dto.NewMaterialResponse(material), nil
}

// ListMaterials returns the files attached to one session, oldest first.
func (s *uploadService) ListMaterials(ctx context.Context, lessonPlanID uint, sessionNumber int) ([]dto.MaterialResponse, error) {
	plan, err := s.plans.GetByID(ctx, lessonPlanID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLessonPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	if plan.SessionByNumber(sessionNumber) == nil {
		return nil, ErrSessionNotFound
	}

	items, err := s.materials.ListBySession(ctx, lessonPlanID, sessionNumber)
	if err != nil {
		return nil, err
	}
	out := make([]dto.MaterialResponse, 0, len(items))
	for _, item := range items {
		out = append(out, dto.NewMaterialResponse(item))
	}
	return out, nil
}

// RemoveLessonPlanMaterials deletes the plan's material records, then their stored files.
// Storage failures are logged; the records are gone either way.
func (s *uploadService) RemoveLessonPlanMaterials(ctx context.Context, lessonPlanID uint) (int, error) {
	removed, err := s.materials.DeleteByLessonPlan(ctx, lessonPlanID)
	if err != nil {
		return 0, err
	}
	if s.storage == nil {
		return len(removed), nil
	}
	for _, material := range removed {
		if material.PublicID == "" {
			continue
		}
		if err := s.storage.Delete(ctx, material.PublicID); err != nil {
			s.logger.Warn().Err(err).Str("public_id", material.PublicID).Msg("failed to delete stored material")
		}
	}
	return len(removed), nil
}

// scan bounds the uncompressed size of zip-based documents.
func (s *uploadService) scan(payload []byte, mime string) error {
	if !strings.Contains(mime, "zip") && !strings.Contains(mime, "openxmlformats") {
		return nil
	}
	reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		return ErrUploadScanFailed
	}
	var totalUncompressed uint64
	for _, f := range reader.File {
		totalUncompressed += f.UncompressedSize64
		if totalUncompressed > uint64(s.maxSize*20) {
			return fmt.Errorf("archive uncompressed size too large: %w", ErrUploadScanFailed)
		}
	}
	return nil
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("material-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	if strings.HasPrefix(lower, "image/") {
		return "image"
	}
	return lower
}

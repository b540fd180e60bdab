package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/models"
	"github.com/noah-isme/teachmate-api/internal/repository"
	"github.com/noah-isme/teachmate-api/pkg/cloudinary"
)

type memoryStorage struct {
	folders []string
	names   []string
	sizes   []int
	deleted []string
	err     error
}

func (m *memoryStorage) Delete(_ context.Context, publicID string) error {
	m.deleted = append(m.deleted, publicID)
	return m.err
}

func (m *memoryStorage) Upload(_ context.Context, subfolder, name string, reader io.Reader) (cloudinary.Asset, error) {
	if m.err != nil {
		return cloudinary.Asset{}, m.err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return cloudinary.Asset{}, err
	}
	m.folders = append(m.folders, subfolder)
	m.names = append(m.names, name)
	m.sizes = append(m.sizes, len(data))
	return cloudinary.Asset{URL: "https://cdn.test/" + subfolder + "/" + name, PublicID: subfolder + "/" + name, Bytes: len(data)}, nil
}

func multipartFile(t *testing.T, name string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })
	return form.File["file"][0]
}

type uploadFixture struct {
	plans     repository.LessonPlanRepository
	materials repository.MaterialRepository
	plan      models.LessonPlan
	storage   *memoryStorage
	service   UploadService
}

func newUploadFixture(t *testing.T, storage MaterialStorage, maxMB int) uploadFixture {
	t.Helper()
	db := newTestDB(t)
	f := seedSchool(t, db)
	plans := repository.NewLessonPlanRepository(db)
	plan := models.LessonPlan{
		TeacherID:     f.Teacher.ID,
		SubjectID:     f.Subject.ID,
		GradeID:       f.Grade.ID,
		ChapterID:     f.Chapter.ID,
		ChapterNumber: 3,
		TotalSessions: 1,
		Sessions:      []models.LessonPlanSession{{SessionNumber: 1, TopicsCovered: []string{"Chlorophyll"}}},
		Status:        models.LessonPlanStatusDraft,
		IsActive:      true,
	}
	require.NoError(t, plans.Create(context.Background(), &plan))

	materials := repository.NewMaterialRepository(db)
	fixture := uploadFixture{
		plans:     plans,
		materials: materials,
		plan:      plan,
		service:   NewUploadService(storage, materials, plans, maxMB, testLogger()),
	}
	if mem, ok := storage.(*memoryStorage); ok {
		fixture.storage = mem
	}
	return fixture
}

func TestUploadMaterialAttachesToSession(t *testing.T) {
	u := newUploadFixture(t, &memoryStorage{}, 1)
	pdf := []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n%%EOF")

	resp, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, multipartFile(t, "Leaf Diagram (final).PDF", pdf))
	require.NoError(t, err)
	require.Equal(t, "application/pdf", resp.MimeType)
	require.Equal(t, "leaf-diagram--final.pdf", resp.FileName)
	require.Equal(t, "Leaf Diagram (final).PDF", resp.Title)
	require.Equal(t, int64(len(pdf)), resp.SizeBytes)
	require.Len(t, resp.Checksum, 64)
	require.Equal(t, []string{fmt.Sprintf("lesson-plans/%d/session-1", u.plan.ID)}, u.storage.folders)

	plan, err := u.plans.GetByID(context.Background(), u.plan.ID)
	require.NoError(t, err)
	resources := plan.Sessions[0].Resources
	require.Len(t, resources, 1)
	require.Equal(t, models.ResourceKindMaterial, resources[0].Kind)
	require.Equal(t, resp.URL, resources[0].URL)
}

func TestUploadMaterialDeduplicatesWithinSession(t *testing.T) {
	u := newUploadFixture(t, &memoryStorage{}, 1)
	notes := []byte("Chlorophyll absorbs red and blue light.")

	first, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, multipartFile(t, "notes.txt", notes))
	require.NoError(t, err)
	second, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{Title: "Again"}, multipartFile(t, "copy.txt", notes))
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, u.storage.names, 1, "identical bytes are stored once")

	plan, err := u.plans.GetByID(context.Background(), u.plan.ID)
	require.NoError(t, err)
	require.Len(t, plan.Sessions[0].Resources, 1)
}

func TestListMaterials(t *testing.T) {
	u := newUploadFixture(t, &memoryStorage{}, 1)
	ctx := context.Background()

	empty, err := u.service.ListMaterials(ctx, u.plan.ID, 1)
	require.NoError(t, err)
	require.Empty(t, empty)

	uploaded, err := u.service.UploadMaterial(ctx, u.plan.ID, 1, dto.MaterialUploadRequest{Title: "Leaf notes"}, multipartFile(t, "notes.txt", []byte("stomata open in daylight")))
	require.NoError(t, err)

	listed, err := u.service.ListMaterials(ctx, u.plan.ID, 1)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, uploaded.ID, listed[0].ID)
	require.Equal(t, "Leaf notes", listed[0].Title)

	_, err = u.service.ListMaterials(ctx, u.plan.ID, 2)
	require.ErrorIs(t, err, ErrSessionNotFound)
	_, err = u.service.ListMaterials(ctx, u.plan.ID+100, 1)
	require.ErrorIs(t, err, ErrLessonPlanNotFound)
}

func TestRemoveLessonPlanMaterials(t *testing.T) {
	u := newUploadFixture(t, &memoryStorage{}, 1)
	ctx := context.Background()

	_, err := u.service.UploadMaterial(ctx, u.plan.ID, 1, dto.MaterialUploadRequest{}, multipartFile(t, "notes.txt", []byte("leaf notes")))
	require.NoError(t, err)

	removed, err := u.service.RemoveLessonPlanMaterials(ctx, u.plan.ID)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
	require.Equal(t, []string{fmt.Sprintf("lesson-plans/%d/session-1/notes.txt", u.plan.ID)}, u.storage.deleted)

	left, err := u.materials.ListBySession(ctx, u.plan.ID, 1)
	require.NoError(t, err)
	require.Empty(t, left)

	removed, err = u.service.RemoveLessonPlanMaterials(ctx, u.plan.ID)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestUploadMaterialRejections(t *testing.T) {
	u := newUploadFixture(t, &memoryStorage{}, 1)

	_, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, nil)
	require.ErrorIs(t, err, ErrUploadMissing)

	text := multipartFile(t, "notes.txt", []byte("Photosynthesis notes"))
	_, err = u.service.UploadMaterial(context.Background(), 999, 1, dto.MaterialUploadRequest{}, text)
	require.ErrorIs(t, err, ErrLessonPlanNotFound)

	_, err = u.service.UploadMaterial(context.Background(), u.plan.ID, 4, dto.MaterialUploadRequest{}, text)
	require.ErrorIs(t, err, ErrSessionNotFound)

	big := multipartFile(t, "big.txt", bytes.Repeat([]byte("a"), 1<<20+1))
	_, err = u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, big)
	require.ErrorIs(t, err, ErrUploadTooLarge)

	page := multipartFile(t, "page.html", []byte("<!DOCTYPE html><html><body>hi</body></html>"))
	_, err = u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, page)
	require.ErrorIs(t, err, ErrInvalidFileType)

	require.Empty(t, u.storage.names, "rejected files never reach storage")
}

func TestUploadMaterialStorageFailures(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		u := newUploadFixture(t, nil, 1)
		_, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{}, multipartFile(t, "notes.txt", []byte("notes")))
		require.ErrorIs(t, err, ErrProviderUnavailable)
	})

	t.Run("provider error", func(t *testing.T) {
		u := newUploadFixture(t, &memoryStorage{err: errors.New("cloud down")}, 1)
		_, err := u.service.UploadMaterial(context.Background(), u.plan.ID, 1, dto.MaterialUploadRequest{Title: "Notes"}, multipartFile(t, "notes.txt", []byte("notes")))
		var external *ExternalError
		require.ErrorAs(t, err, &external)
		require.Equal(t, "cloudinary", external.Provider)
	})
}

func TestSanitizeFileName(t *testing.T) {
	require.Equal(t, "chapter-3-notes.docx", sanitizeFileName("Chapter 3 Notes.DOCX"))
	require.Equal(t, "plain.bin", sanitizeFileName("plain"))
	require.Equal(t, "image", normalizeMime("image/png"))
	require.Equal(t, "text/plain", normalizeMime("text/plain; charset=utf-8"))
}

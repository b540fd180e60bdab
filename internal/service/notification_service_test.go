package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/teachmate-api/internal/dto"
	"github.com/noah-isme/teachmate-api/internal/repository"
)

func TestNotificationPublishSanitizesAndDelivers(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	svc := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{}, testValidator(), testLogger())

	stream, cancel := svc.Subscribe(f.Teacher.ID)
	defer cancel()

	created, err := svc.Publish(context.Background(), dto.NotificationCreateRequest{
		UserID:  f.Teacher.ID,
		Type:    "assessment.closed",
		Title:   "<b>Photosynthesis check</b>",
		Message: "Closed <script>alert(1)</script>with 1 submission",
		Data:    map[string]interface{}{"assessment_id": 4},
	})
	require.NoError(t, err)
	require.Equal(t, "Photosynthesis check", created.Title)
	require.Equal(t, "Closed with 1 submission", created.Message)

	select {
	case got := <-stream:
		require.Equal(t, created.ID, got.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not receive the notification")
	}

	_, err = svc.Publish(context.Background(), dto.NotificationCreateRequest{UserID: f.Teacher.ID, Type: "x", Message: "<script></script>"})
	require.ErrorIs(t, err, ErrNotificationEmpty)

	page, err := svc.List(context.Background(), f.Teacher.ID, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, int64(1), page.Unread)

	read, err := svc.MarkRead(context.Background(), created.ID, f.Teacher.ID)
	require.NoError(t, err)
	require.True(t, read.Read)
	require.NotNil(t, read.ReadAt)

	again, err := svc.MarkRead(context.Background(), created.ID, f.Teacher.ID)
	require.NoError(t, err)
	require.Equal(t, read.ReadAt.Unix(), again.ReadAt.Unix(), "the first read time is kept")

	page, err = svc.List(context.Background(), f.Teacher.ID, true, 10, 0)
	require.NoError(t, err)
	require.Empty(t, page.Items)
	require.Zero(t, page.Unread)

	_, err = svc.MarkRead(context.Background(), created.ID, f.Student.ID)
	require.ErrorIs(t, err, ErrNotificationNotFound, "another user's notification is invisible")

	_, err = svc.List(context.Background(), 0, false, 10, 0)
	require.Error(t, err)
}

func TestNotificationListPagesAndMarkAllRead(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	svc := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{}, testValidator(), testLogger())
	ctx := context.Background()

	for _, message := range []string{"first", "second", "third"} {
		_, err := svc.Publish(ctx, dto.NotificationCreateRequest{UserID: f.Teacher.ID, Type: "job.succeeded", Message: message})
		require.NoError(t, err)
	}

	page, err := svc.List(ctx, f.Teacher.ID, false, 2, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "third", page.Items[0].Message, "newest first")
	require.Equal(t, int64(3), page.Unread)

	page, err = svc.List(ctx, f.Teacher.ID, false, 500, -4)
	require.NoError(t, err)
	require.Equal(t, repository.DefaultNotificationPage, page.Limit)
	require.Zero(t, page.Offset)

	updated, err := svc.MarkAllRead(ctx, f.Teacher.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), updated)

	updated, err = svc.MarkAllRead(ctx, f.Teacher.ID)
	require.NoError(t, err)
	require.Zero(t, updated)

	page, err = svc.List(ctx, f.Teacher.ID, true, 0, 0)
	require.NoError(t, err)
	require.Empty(t, page.Items)
}

func TestNotificationFanOutAcrossInstances(t *testing.T) {
	db := newTestDB(t)
	f := seedSchool(t, db)
	mr, client := newMiniredisClient(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{Redis: client, Channel: "teachmate"}, testValidator(), testLogger())
	listener := NewNotificationService(repository.NewNotificationRepository(db), NotificationFanout{Redis: client, Channel: "teachmate"}, testValidator(), testLogger())
	listener.Start(ctx)

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub("teachmate:notifications")["teachmate:notifications"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	stream, unsubscribe := listener.Subscribe(f.Teacher.ID)
	defer unsubscribe()

	created, err := publisher.Publish(context.Background(), dto.NotificationCreateRequest{UserID: f.Teacher.ID, Type: "job.succeeded", Message: "Videos curated"})
	require.NoError(t, err)

	select {
	case got := <-stream:
		require.Equal(t, created.ID, got.ID)
		require.Equal(t, "Videos curated", got.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not fanned out through redis")
	}
}

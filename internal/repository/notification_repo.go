package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// Page bounds for notification listings.
const (
	DefaultNotificationPage = 50
	MaxNotificationPage     = 100
)

// NotificationFilter selects a page of one user's notifications, newest first.
type NotificationFilter struct {
	UserID     uint
	UnreadOnly bool
	Limit      int
	Offset     int
}

// Normalize clamps the page to the allowed bounds.
func (f NotificationFilter) Normalize() NotificationFilter {
	if f.Limit <= 0 || f.Limit > MaxNotificationPage {
		f.Limit = DefaultNotificationPage
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// NotificationRepository stores teacher alerts.
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID uint) (int64, error)
	MarkRead(ctx context.Context, id, userID uint, at time.Time) (models.Notification, error)
	MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error)
}

type notificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	return r.db.WithContext(ctx).Create(notification).Error
}

func (r *notificationRepository) owned(ctx context.Context, userID uint) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
}

func (r *notificationRepository) List(ctx context.Context, filter NotificationFilter) ([]models.Notification, error) {
	filter = filter.Normalize()

	query := r.owned(ctx, filter.UserID)
	if filter.UnreadOnly {
		query = query.Where("read_at IS NULL")
	}

	var notifications []models.Notification
	err := query.Order("created_at DESC").Order("id DESC").
		Limit(filter.Limit).Offset(filter.Offset).
		Find(&notifications).Error
	return notifications, err
}

func (r *notificationRepository) CountUnread(ctx context.Context, userID uint) (int64, error) {
	var count int64
	err := r.owned(ctx, userID).Where("read_at IS NULL").Count(&count).Error
	return count, err
}

// MarkRead stamps the notification once; repeated calls keep the first read time.
// A notification owned by someone else reports gorm.ErrRecordNotFound.
func (r *notificationRepository) MarkRead(ctx context.Context, id, userID uint, at time.Time) (models.Notification, error) {
	var notification models.Notification
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&notification).Error; err != nil {
			return err
		}
		if notification.ReadAt != nil {
			return nil
		}
		notification.ReadAt = &at
		return tx.Model(&notification).Update("read_at", at).Error
	})
	if err != nil {
		return models.Notification{}, err
	}
	return notification, nil
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint, at time.Time) (int64, error) {
	result := r.owned(ctx, userID).Where("read_at IS NULL").Update("read_at", at)
	return result.RowsAffected, result.Error
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// ChatFilter narrows conversation listings.
type ChatFilter struct {
	StudentID             *uint
	ParentID              *uint
	NeedsTeacherAttention *bool
	IncludeClosed         bool
	Limit                 int
}

// ChatRepository persists tutoring conversations.
type ChatRepository interface {
	GetBySessionID(ctx context.Context, sessionID string) (models.ChatConversation, error)
	List(ctx context.Context, filter ChatFilter) ([]models.ChatConversation, error)
	Create(ctx context.Context, conversation *models.ChatConversation) error
	Save(ctx context.Context, conversation *models.ChatConversation) error
	Deactivate(ctx context.Context, sessionID string) error
}

type chatRepository struct {
	db *gorm.DB
}

// NewChatRepository constructs a chat repository backed by GORM.
func NewChatRepository(db *gorm.DB) ChatRepository {
	return &chatRepository{db: db}
}

func (r *chatRepository) GetBySessionID(ctx context.Context, sessionID string) (models.ChatConversation, error) {
	var conversation models.ChatConversation
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&conversation).Error; err != nil {
		return models.ChatConversation{}, err
	}
	return conversation, nil
}

func (r *chatRepository) List(ctx context.Context, filter ChatFilter) ([]models.ChatConversation, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := r.db.WithContext(ctx)
	if !filter.IncludeClosed {
		query = query.Where("is_active = ?", true)
	}
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.ParentID != nil {
		query = query.Where("parent_id = ?", *filter.ParentID)
	}
	if filter.NeedsTeacherAttention != nil {
		query = query.Where("needs_teacher_attention = ?", *filter.NeedsTeacherAttention)
	}

	var conversations []models.ChatConversation
	if err := query.Order("updated_at DESC").Limit(limit).Find(&conversations).Error; err != nil {
		return nil, err
	}
	return conversations, nil
}

func (r *chatRepository) Create(ctx context.Context, conversation *models.ChatConversation) error {
	return r.db.WithContext(ctx).Create(conversation).Error
}

func (r *chatRepository) Save(ctx context.Context, conversation *models.ChatConversation) error {
	return r.db.WithContext(ctx).Save(conversation).Error
}

func (r *chatRepository) Deactivate(ctx context.Context, sessionID string) error {
	result := r.db.WithContext(ctx).Model(&models.ChatConversation{}).
		Where("session_id = ?", sessionID).
		Update("is_active", false)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// VoiceCallRepository persists voice call records.
type VoiceCallRepository interface {
	Create(ctx context.Context, call *models.VoiceCall) error
	GetByCallID(ctx context.Context, callID string) (models.VoiceCall, error)
	GetByProviderCallID(ctx context.Context, providerCallID string) (models.VoiceCall, error)
	ListByStudent(ctx context.Context, studentID uint, limit int) ([]models.VoiceCall, error)
	Save(ctx context.Context, call *models.VoiceCall) error
}

type voiceCallRepository struct {
	db *gorm.DB
}

// NewVoiceCallRepository instantiates the repository.
func NewVoiceCallRepository(db *gorm.DB) VoiceCallRepository {
	return &voiceCallRepository{db: db}
}

func (r *voiceCallRepository) Create(ctx context.Context, call *models.VoiceCall) error {
	return r.db.WithContext(ctx).Create(call).Error
}

func (r *voiceCallRepository) GetByCallID(ctx context.Context, callID string) (models.VoiceCall, error) {
	var call models.VoiceCall
	if err := r.db.WithContext(ctx).Where("call_id = ?", callID).First(&call).Error; err != nil {
		return models.VoiceCall{}, err
	}
	return call, nil
}

func (r *voiceCallRepository) GetByProviderCallID(ctx context.Context, providerCallID string) (models.VoiceCall, error) {
	var call models.VoiceCall
	if err := r.db.WithContext(ctx).Where("retell_call_id = ?", providerCallID).First(&call).Error; err != nil {
		return models.VoiceCall{}, err
	}
	return call, nil
}

func (r *voiceCallRepository) ListByStudent(ctx context.Context, studentID uint, limit int) ([]models.VoiceCall, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var calls []models.VoiceCall
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", studentID).
		Order("created_at DESC").
		Limit(limit).
		Find(&calls).Error; err != nil {
		return nil, err
	}
	return calls, nil
}

func (r *voiceCallRepository) Save(ctx context.Context, call *models.VoiceCall) error {
	return r.db.WithContext(ctx).Save(call).Error
}

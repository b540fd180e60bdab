package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// ParentRepository persists parent accounts and their children links.
type ParentRepository interface {
	List(ctx context.Context, search string) ([]models.Parent, error)
	GetByID(ctx context.Context, id uint) (models.Parent, error)
	GetByEmail(ctx context.Context, email string) (models.Parent, error)
	Create(ctx context.Context, parent *models.Parent) error
	Update(ctx context.Context, parent *models.Parent) error
	Delete(ctx context.Context, id uint) error
}

type parentRepository struct {
	db *gorm.DB
}

// NewParentRepository instantiates the repository.
func NewParentRepository(db *gorm.DB) ParentRepository {
	return &parentRepository{db: db}
}

func (r *parentRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Parent{}).
		Preload("Children").
		Preload("Children.Class").
		Preload("Children.Grade")
}

func (r *parentRepository) List(ctx context.Context, search string) ([]models.Parent, error) {
	query := r.baseQuery(ctx)
	if search = strings.TrimSpace(search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(father_name) LIKE ? OR LOWER(mother_name) LIKE ? OR LOWER(email) LIKE ? OR phone LIKE ?", like, like, like, like)
	}

	var parents []models.Parent
	if err := query.Order("created_at DESC").Find(&parents).Error; err != nil {
		return nil, err
	}
	return parents, nil
}

func (r *parentRepository) GetByID(ctx context.Context, id uint) (models.Parent, error) {
	var parent models.Parent
	if err := r.baseQuery(ctx).First(&parent, id).Error; err != nil {
		return models.Parent{}, err
	}
	return parent, nil
}

func (r *parentRepository) GetByEmail(ctx context.Context, email string) (models.Parent, error) {
	var parent models.Parent
	if err := r.baseQuery(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&parent).Error; err != nil {
		return models.Parent{}, err
	}
	return parent, nil
}

func (r *parentRepository) Create(ctx context.Context, parent *models.Parent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		children := parent.Children
		if err := tx.Omit("Children").Create(parent).Error; err != nil {
			return err
		}
		return tx.Model(parent).Omit("Children.*").Association("Children").Replace(children)
	})
}

func (r *parentRepository) Update(ctx context.Context, parent *models.Parent) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		children := parent.Children
		if err := tx.Omit("Children").Save(parent).Error; err != nil {
			return err
		}
		return tx.Model(parent).Omit("Children.*").Association("Children").Replace(children)
	})
}

func (r *parentRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Parent{ID: id}).Association("Children").Clear(); err != nil {
			return err
		}
		return deleteByID(ctx, tx, &models.Parent{}, id)
	})
}

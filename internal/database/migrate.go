package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/teachmate-api/internal/models"
)

// Models lists every persisted entity in dependency order.
func Models() []interface{} {
	return []interface{}{
		&models.Grade{},
		&models.Class{},
		&models.Subject{},
		&models.Chapter{},
		&models.Teacher{},
		&models.Student{},
		&models.Parent{},
		&models.LessonPlan{},
		&models.LessonPlanSession{},
		&models.Material{},
		&models.Assessment{},
		&models.AssessmentQuestions{},
		&models.Submission{},
		&models.ChatConversation{},
		&models.VoiceCall{},
		&models.Notification{},
		&models.BackgroundJob{},
	}
}

// Migrate creates or updates the schema for all entities.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

package models

import "time"

// Material is a teaching file uploaded for a lesson plan session.
type Material struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	LessonPlanID  uint      `gorm:"not null;index:idx_material_session" json:"lesson_plan_id"`
	SessionNumber int       `gorm:"not null;index:idx_material_session" json:"session_number"`
	TeacherID     *uint     `gorm:"index" json:"teacher_id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	URL           string    `gorm:"size:512;not null" json:"url"`
	PublicID      string    `gorm:"size:255" json:"public_id"`
	MimeType      string    `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes     int64     `gorm:"not null" json:"size_bytes"`
	Checksum      string    `gorm:"size:128;index" json:"checksum"`
	CreatedAt     time.Time `json:"created_at"`
}

package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID          int64  `gorm:"primaryKey;autoIncrement"`
	ExternalID  string `gorm:"uniqueIndex;not null"`
	DisplayName string
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null"`
}

type WorkModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"uniqueIndex;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// ChapterModel positions are unique within a work.
type ChapterModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	WorkID    int64     `gorm:"not null;uniqueIndex:idx_chapter_work_position,priority:1"`
	Title     string    `gorm:"not null"`
	Position  int       `gorm:"not null;uniqueIndex:idx_chapter_work_position,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

type ParagraphModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	ChapterID int64  `gorm:"not null;index:idx_paragraph_chapter_position,priority:1"`
	Position  int    `gorm:"not null;index:idx_paragraph_chapter_position,priority:2"`
	Content   string `gorm:"type:text;not null"`
}

// ProgressModel is unique per (user, chapter).
type ProgressModel struct {
	ID               int64     `gorm:"primaryKey;autoIncrement"`
	UserID           int64     `gorm:"not null;uniqueIndex:idx_progress_user_chapter,priority:1"`
	ChapterID        int64     `gorm:"not null;uniqueIndex:idx_progress_user_chapter,priority:2"`
	CurrentParagraph int       `gorm:"not null"`
	IsCompleted      bool      `gorm:"not null"`
	CreatedAt        time.Time `gorm:"not null"`
	UpdatedAt        time.Time `gorm:"not null;index"`
}

type StatModel struct {
	ID              int64     `gorm:"primaryKey;autoIncrement"`
	UserID          int64     `gorm:"uniqueIndex;not null"`
	UsageSeconds    int64     `gorm:"not null"`
	PracticeSeconds int64     `gorm:"not null"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// LoginRecordModel is unique per (user, day); Day is local midnight.
type LoginRecordModel struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	UserID    int64     `gorm:"not null;uniqueIndex:idx_login_user_day,priority:1"`
	Day       time.Time `gorm:"not null;uniqueIndex:idx_login_user_day,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

type ErrorReportModel struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	UserID    *int64 `gorm:"index"`
	ChapterID int64  `gorm:"not null"`
	Paragraph int    `gorm:"not null"`
	Message   string `gorm:"type:text;not null"`
	Context   datatypes.JSON
	CreatedAt time.Time `gorm:"not null;index"`
}

type PostModel struct {
	ID        string    `gorm:"primaryKey"`
	Title     string    `gorm:"not null"`
	Content   string    `gorm:"type:text;not null"`
	Published bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

package domain

import "time"

type User struct {
	ID          int64     `json:"id"`
	ExternalID  string    `json:"externalId"`
	DisplayName string    `json:"displayName,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type Work struct {
	ID       int64            `json:"id"`
	Name     string           `json:"name"`
	Chapters []ChapterSummary `json:"chapters"`
}

type ChapterSummary struct {
	ID    int64  `json:"id"`
	Title string `json:"title"`
	Order int    `json:"order"`
}

type Chapter struct {
	ID     int64  `json:"id"`
	WorkID int64  `json:"workId"`
	Title  string `json:"title"`
	Order  int    `json:"order"`
}

type Paragraph struct {
	ID        int64  `json:"id"`
	ChapterID int64  `json:"chapterId"`
	Order     int    `json:"order"`
	Content   string `json:"content"`
}

type Progress struct {
	ID               int64     `json:"id"`
	UserID           int64     `json:"userId"`
	ChapterID        int64     `json:"chapterId"`
	CurrentParagraph int       `json:"currentParagraph"`
	IsCompleted      bool      `json:"isCompleted"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// Stat holds cumulative per-user counters. Both only ever grow.
type Stat struct {
	UserID          int64 `json:"userId"`
	UsageSeconds    int64 `json:"usageSeconds"`
	PracticeSeconds int64 `json:"practiceSeconds"`
}

// StatAggregate is the average of all Stat rows. Averages are nil when no
// rows exist.
type StatAggregate struct {
	Users              int64
	AvgUsageSeconds    *float64
	AvgPracticeSeconds *float64
}

type LoginRecord struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Day       time.Time `json:"day"`
	CreatedAt time.Time `json:"createdAt"`
}

type ErrorReport struct {
	ID        int64             `json:"id"`
	UserID    *int64            `json:"userId,omitempty"`
	ChapterID int64             `json:"chapterId"`
	Paragraph int               `json:"paragraph"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"-"`
	CreatedAt time.Time         `json:"createdAt"`
}

// ProgressUpdate is one record-progress call after validation.
type ProgressUpdate struct {
	UserID           int64
	ChapterID        int64
	CurrentParagraph int
	PracticeSeconds  int64
	MarkCompleted    bool
}

// ImportResult describes a chapter created from imported full text.
type ImportResult struct {
	WorkID     int64 `json:"workId"`
	ChapterID  int64 `json:"chapterId"`
	Paragraphs int   `json:"paragraphs"`
}

type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

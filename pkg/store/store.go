package store

import (
	"context"
	"strconv"
	"time"

	"recite/pkg/domain"
)

// Store defines persistence operations for the recitation tracker.
type Store interface {
	// users
	EnsureUser(ctx context.Context, externalID, displayName string) (domain.User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (domain.User, bool, error)

	// catalog
	ListWorks(ctx context.Context) ([]domain.Work, error)
	GetChapter(ctx context.Context, id int64) (domain.Chapter, bool, error)
	ListParagraphs(ctx context.Context, chapterID int64) ([]domain.Paragraph, error)
	ImportChapter(ctx context.Context, workName, chapterTitle string, paragraphs []string) (domain.ImportResult, error)

	// progress & stats
	LatestProgress(ctx context.Context, userID int64) (domain.Progress, bool, error)
	RecordProgress(ctx context.Context, update domain.ProgressUpdate) (domain.Progress, error)
	RecordVisit(ctx context.Context, externalID string, day time.Time, usageSeconds int64) (domain.User, error)
	GetStat(ctx context.Context, userID int64) (domain.Stat, bool, error)
	AggregateStats(ctx context.Context) (domain.StatAggregate, error)
	CountLoginDays(ctx context.Context, userID int64) (int64, error)

	// reports
	CreateErrorReport(ctx context.Context, report domain.ErrorReport) (domain.ErrorReport, error)
}

// PostStore persists blog posts.
type PostStore interface {
	CreatePost(ctx context.Context, post domain.Post) error
	GetPost(ctx context.Context, id string) (domain.Post, bool, error)
	ListPosts(ctx context.Context) ([]domain.Post, error)
	UpdatePost(ctx context.Context, post domain.Post) error
	DeletePost(ctx context.Context, id string) (bool, error)
}

// DefaultChapterTitle is used when an import names no chapter.
func DefaultChapterTitle(order int) string {
	return "Chapter " + strconv.Itoa(order)
}

package app

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"recite/pkg/domain"
)

// ProgressInput is the body of a record-progress call.
type ProgressInput struct {
	ChapterID        int64
	CurrentParagraph int
	PracticeSeconds  int64
	MarkCompleted    bool
}

// ReportInput is the body of a report-error call.
type ReportInput struct {
	ChapterID int64
	Paragraph int
	Message   string
	// Context is stored alongside the report for triage.
	Context map[string]string
}

// RecordProgress moves the caller's bookmark in a chapter and adds practice
// time. Both writes commit together.
func (a *App) RecordProgress(ctx context.Context, token string, in ProgressInput) (domain.Progress, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Progress{}, ErrAuthRequired
	}
	switch {
	case in.ChapterID <= 0:
		return domain.Progress{}, validationError("chapterId must be positive")
	case in.CurrentParagraph < 1:
		return domain.Progress{}, validationError("currentParagraph must be at least 1")
	case in.PracticeSeconds < 0:
		return domain.Progress{}, validationError("practiceSeconds must not be negative")
	}
	user, ok, err := a.store.GetUserByExternalID(ctx, token)
	if err != nil {
		return domain.Progress{}, fmt.Errorf("lookup user: %w", err)
	}
	if !ok {
		return domain.Progress{}, ErrUserNotFound
	}
	progress, err := a.store.RecordProgress(ctx, domain.ProgressUpdate{
		UserID:           user.ID,
		ChapterID:        in.ChapterID,
		CurrentParagraph: in.CurrentParagraph,
		PracticeSeconds:  in.PracticeSeconds,
		MarkCompleted:    in.MarkCompleted,
	})
	if err != nil {
		return domain.Progress{}, fmt.Errorf("record progress: %w", err)
	}
	return progress, nil
}

// Ping checks the caller in for today and adds usage time. Anonymous pings
// are accepted and ignored.
func (a *App) Ping(ctx context.Context, token string, usageSeconds int64) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	if usageSeconds < 0 {
		usageSeconds = 0
	}
	if _, err := a.store.RecordVisit(ctx, token, a.today(), usageSeconds); err != nil {
		return fmt.Errorf("record visit: %w", err)
	}
	return nil
}

// ReportError stores a content error report. Attribution is best effort:
// an unknown or missing token yields an anonymous report.
func (a *App) ReportError(ctx context.Context, token string, in ReportInput) (domain.ErrorReport, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return domain.ErrorReport{}, validationError("message required")
	}
	if utf8.RuneCountInString(message) > maxReportMessageRunes {
		message = string([]rune(message)[:maxReportMessageRunes])
	}
	report := domain.ErrorReport{
		ChapterID: in.ChapterID,
		Paragraph: in.Paragraph,
		Message:   message,
		Context:   in.Context,
	}
	if user, ok, err := a.lookupUser(ctx, token); err == nil && ok {
		id := user.ID
		report.UserID = &id
	}
	saved, err := a.store.CreateErrorReport(ctx, report)
	if err != nil {
		return domain.ErrorReport{}, fmt.Errorf("create error report: %w", err)
	}
	return saved, nil
}

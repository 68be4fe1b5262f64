package app

import (
	"context"
	"fmt"
	"strings"

	"recite/pkg/domain"
)

// ImportInput is the body of an admin full-text import.
type ImportInput struct {
	WorkName     string
	ChapterTitle string
	Fulltext     string
	// Format is "text" (default) or "html".
	Format string
}

// ListWorks returns every work with its chapter outline.
func (a *App) ListWorks(ctx context.Context) ([]domain.Work, error) {
	works, err := a.store.ListWorks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list works: %w", err)
	}
	return works, nil
}

// ListParagraphs returns a chapter's paragraphs in reading order.
func (a *App) ListParagraphs(ctx context.Context, chapterID int64) ([]domain.Paragraph, error) {
	if chapterID <= 0 {
		return nil, validationError("chapter id must be positive")
	}
	if _, ok, err := a.store.GetChapter(ctx, chapterID); err != nil {
		return nil, fmt.Errorf("get chapter: %w", err)
	} else if !ok {
		return nil, ErrChapterNotFound
	}
	paragraphs, err := a.store.ListParagraphs(ctx, chapterID)
	if err != nil {
		return nil, fmt.Errorf("list paragraphs: %w", err)
	}
	return paragraphs, nil
}

// ImportText segments full text into paragraphs and appends it to the named
// work as a new chapter.
func (a *App) ImportText(ctx context.Context, in ImportInput) (domain.ImportResult, error) {
	workName := strings.TrimSpace(in.WorkName)
	if workName == "" {
		return domain.ImportResult{}, validationError("workName required")
	}
	if strings.TrimSpace(in.Fulltext) == "" {
		return domain.ImportResult{}, validationError("fulltext required")
	}

	text := in.Fulltext
	switch strings.ToLower(strings.TrimSpace(in.Format)) {
	case "", "text", "plain":
	case "html":
		extracted, err := extractHTMLText(text)
		if err != nil {
			return domain.ImportResult{}, validationError("fulltext is not valid html")
		}
		text = extracted
	default:
		return domain.ImportResult{}, validationError("format must be text or html")
	}

	paragraphs := segmentParagraphs(text, a.importMaxParagraphRunes)
	if len(paragraphs) == 0 {
		return domain.ImportResult{}, validationError("fulltext contains no paragraphs")
	}
	result, err := a.store.ImportChapter(ctx, workName, strings.TrimSpace(in.ChapterTitle), paragraphs)
	if err != nil {
		return domain.ImportResult{}, fmt.Errorf("import chapter: %w", err)
	}
	return result, nil
}

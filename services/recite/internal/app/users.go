package app

import (
	"context"
	"fmt"
	"strings"

	"recite/pkg/domain"
)

// HomeState tells the front page whether a "continue" button makes sense.
type HomeState struct {
	CanContinue   bool   `json:"canContinue"`
	LastChapterID *int64 `json:"lastChapterId,omitempty"`
	LastParagraph int    `json:"lastParagraph"`
}

// EnsureUser creates or refreshes the user behind token. An empty display
// name leaves the stored one alone.
func (a *App) EnsureUser(ctx context.Context, token, displayName string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, validationError("userId required")
	}
	user, err := a.store.EnsureUser(ctx, token, strings.TrimSpace(displayName))
	if err != nil {
		return domain.User{}, fmt.Errorf("ensure user: %w", err)
	}
	return user, nil
}

// HomeState reports where the caller stopped reading last time.
func (a *App) HomeState(ctx context.Context, token string) (HomeState, error) {
	state := HomeState{LastParagraph: 1}
	user, ok, err := a.lookupUser(ctx, token)
	if err != nil || !ok {
		return state, err
	}
	progress, ok, err := a.store.LatestProgress(ctx, user.ID)
	if err != nil {
		return state, fmt.Errorf("latest progress: %w", err)
	}
	if !ok {
		return state, nil
	}
	chapterID := progress.ChapterID
	state.CanContinue = true
	state.LastChapterID = &chapterID
	if progress.CurrentParagraph > 0 {
		state.LastParagraph = progress.CurrentParagraph
	}
	return state, nil
}

// lookupUser resolves an optional token. A blank or unknown token is not an error.
func (a *App) lookupUser(ctx context.Context, token string) (domain.User, bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, false, nil
	}
	user, ok, err := a.store.GetUserByExternalID(ctx, token)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("lookup user: %w", err)
	}
	return user, ok, nil
}

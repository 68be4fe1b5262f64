package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"recite/pkg/domain"
	"recite/pkg/store"
)

var (
	ErrValidation   = errors.New("invalid request")
	ErrPostNotFound = errors.New("post not found")
)

// Config holds runtime configuration for the blog application.
type Config struct {
	DatabaseURL string
	Store       store.PostStore
}

// App is the blog post service.
type App struct {
	store store.PostStore
	now   func() time.Time
}

// New constructs the application, opening Postgres when no store is given.
func New(cfg Config) (*App, error) {
	postStore := cfg.Store
	if postStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		postStore, err = store.NewGormPostStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	return &App{store: postStore, now: func() time.Time { return time.Now().UTC() }}, nil
}

// CreateInput is the payload of a new post.
type CreateInput struct {
	Title     string
	Content   string
	Published bool
}

// PatchInput carries the fields to change; nil fields stay as they are.
type PatchInput struct {
	Title     *string
	Content   *string
	Published *bool
}

// CreatePost validates and stores a new post.
func (a *App) CreatePost(ctx context.Context, in CreateInput) (domain.Post, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Post{}, fmt.Errorf("%w: title required", ErrValidation)
	}
	now := a.now()
	post := domain.Post{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   in.Content,
		Published: in.Published,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.CreatePost(ctx, post); err != nil {
		return domain.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// ListPosts returns all posts, newest first.
func (a *App) ListPosts(ctx context.Context) ([]domain.Post, error) {
	posts, err := a.store.ListPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

// GetPost returns one post.
func (a *App) GetPost(ctx context.Context, id string) (domain.Post, error) {
	post, ok, err := a.store.GetPost(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Post{}, fmt.Errorf("get post: %w", err)
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	return post, nil
}

// UpdatePost applies a partial update.
func (a *App) UpdatePost(ctx context.Context, id string, in PatchInput) (domain.Post, error) {
	post, err := a.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, err
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return domain.Post{}, fmt.Errorf("%w: title must not be blank", ErrValidation)
		}
		post.Title = title
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Published != nil {
		post.Published = *in.Published
	}
	post.UpdatedAt = a.now()
	if err := a.store.UpdatePost(ctx, post); err != nil {
		return domain.Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

// DeletePost removes a post.
func (a *App) DeletePost(ctx context.Context, id string) error {
	ok, err := a.store.DeletePost(ctx, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	if !ok {
		return ErrPostNotFound
	}
	return nil
}

// Close releases the store when it holds resources such as a connection pool.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

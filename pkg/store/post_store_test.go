package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"recite/pkg/domain"
)

func forEachPostStore(t *testing.T, fn func(t *testing.T, s PostStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) {
		s, err := NewGormPostStoreWithDialector(sqlite.Open(filepath.Join(t.TempDir(), "blog.db")))
		if err != nil {
			t.Fatalf("open sqlite post store: %v", err)
		}
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func TestPostStoreLifecycle(t *testing.T) {
	forEachPostStore(t, func(t *testing.T, s PostStore) {
		ctx := context.Background()
		base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		older := domain.Post{ID: "p-1", Title: "First", Content: "hello", CreatedAt: base, UpdatedAt: base}
		newer := domain.Post{ID: "p-2", Title: "Second", Content: "world", CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(time.Hour)}
		for _, p := range []domain.Post{older, newer} {
			if err := s.CreatePost(ctx, p); err != nil {
				t.Fatalf("create post: %v", err)
			}
		}

		posts, err := s.ListPosts(ctx)
		if err != nil {
			t.Fatalf("list posts: %v", err)
		}
		if len(posts) != 2 || posts[0].ID != "p-2" {
			t.Fatalf("unexpected order: %+v", posts)
		}

		older.Title = "First (edited)"
		older.Published = true
		older.UpdatedAt = base.Add(2 * time.Hour)
		if err := s.UpdatePost(ctx, older); err != nil {
			t.Fatalf("update post: %v", err)
		}
		got, ok, err := s.GetPost(ctx, "p-1")
		if err != nil || !ok {
			t.Fatalf("get post: ok=%v err=%v", ok, err)
		}
		if got.Title != "First (edited)" || !got.Published {
			t.Fatalf("post not updated: %+v", got)
		}

		deleted, err := s.DeletePost(ctx, "p-1")
		if err != nil || !deleted {
			t.Fatalf("delete post: deleted=%v err=%v", deleted, err)
		}
		deleted, err = s.DeletePost(ctx, "p-1")
		if err != nil || deleted {
			t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
		}
		if _, ok, err := s.GetPost(ctx, "p-1"); err != nil || ok {
			t.Fatalf("deleted post still present: ok=%v err=%v", ok, err)
		}
	})
}

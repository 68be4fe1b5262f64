package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"recite/pkg/domain"
)

// GormPostStore implements PostStore using GORM.
type GormPostStore struct {
	db *gorm.DB
}

// NewGormPostStore opens the Postgres DB and migrates the post table.
func NewGormPostStore(dsn string) (*GormPostStore, error) {
	return NewGormPostStoreWithDialector(postgres.Open(dsn))
}

// NewGormPostStoreWithDialector opens any gorm dialector and migrates the post table.
func NewGormPostStoreWithDialector(dialector gorm.Dialector) (*GormPostStore, error) {
	db, err := openDB(dialector)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, &PostModel{}); err != nil {
		return nil, err
	}
	return &GormPostStore{db: db}, nil
}

// CreatePost stores a new post.
func (s *GormPostStore) CreatePost(ctx context.Context, p domain.Post) error {
	model := postToModel(p)
	return s.db.WithContext(ctx).Create(&model).Error
}

// GetPost retrieves a post.
func (s *GormPostStore) GetPost(ctx context.Context, id string) (domain.Post, bool, error) {
	var model PostModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Post{}, false, nil
		}
		return domain.Post{}, false, err
	}
	return postFromModel(model), true, nil
}

// ListPosts returns all posts, newest first.
func (s *GormPostStore) ListPosts(ctx context.Context) ([]domain.Post, error) {
	var models []PostModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Post, 0, len(models))
	for _, m := range models {
		res = append(res, postFromModel(m))
	}
	return res, nil
}

// UpdatePost overwrites the mutable fields of a post.
func (s *GormPostStore) UpdatePost(ctx context.Context, p domain.Post) error {
	model := postToModel(p)
	if model.UpdatedAt.IsZero() {
		model.UpdatedAt = time.Now().UTC()
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "content", "published", "updated_at"}),
	}).Create(&model).Error
}

// DeletePost removes a post and reports whether it existed.
func (s *GormPostStore) DeletePost(ctx context.Context, id string) (bool, error) {
	res := s.db.WithContext(ctx).Delete(&PostModel{}, "id = ?", id)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func postToModel(p domain.Post) PostModel {
	return PostModel{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func postFromModel(m PostModel) domain.Post {
	return domain.Post{
		ID:        m.ID,
		Title:     m.Title,
		Content:   m.Content,
		Published: m.Published,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// Close releases the underlying connection pool.
func (s *GormPostStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"recite/pkg/domain"
)

const migrateLockID int64 = 52110417

const paragraphBatchSize = 200

// GormStore implements Store using GORM. Production runs on Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the Postgres DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	return NewGormStoreWithDialector(postgres.Open(dsn))
}

// NewGormStoreWithDialector opens any gorm dialector and runs auto-migrations.
// The Postgres advisory migration lock is only taken on Postgres.
func NewGormStoreWithDialector(dialector gorm.Dialector) (*GormStore, error) {
	db, err := openDB(dialector)
	if err != nil {
		return nil, err
	}
	if err := migrate(db, &UserModel{}, &WorkModel{}, &ChapterModel{}, &ParagraphModel{},
		&ProgressModel{}, &StatModel{}, &LoginRecordModel{}, &ErrorReportModel{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func openDB(dialector gorm.Dialector) (*gorm.DB, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return db, nil
}

func migrate(db *gorm.DB, models ...any) error {
	run := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(models...); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if db.Dialector.Name() != "postgres" {
		return run(db)
	}
	return withMigrationLock(db, run)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// EnsureUser creates the user or refreshes it. An empty displayName keeps
// the stored one.
func (s *GormStore) EnsureUser(ctx context.Context, externalID, displayName string) (domain.User, error) {
	db := s.db.WithContext(ctx)
	if err := upsertUser(db, externalID, displayName); err != nil {
		return domain.User{}, err
	}
	var model UserModel
	if err := db.Where("external_id = ?", externalID).First(&model).Error; err != nil {
		return domain.User{}, fmt.Errorf("load user: %w", err)
	}
	return userFromModel(model), nil
}

func upsertUser(tx *gorm.DB, externalID, displayName string) error {
	now := time.Now().UTC()
	model := UserModel{
		ExternalID:  externalID,
		DisplayName: displayName,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "external_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"updated_at"}),
	}
	if displayName != "" {
		conflict.DoUpdates = clause.AssignmentColumns([]string{"display_name", "updated_at"})
	}
	if err := tx.Clauses(conflict).Create(&model).Error; err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUserByExternalID looks up a user by its login token.
func (s *GormStore) GetUserByExternalID(ctx context.Context, externalID string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("external_id = ?", externalID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListWorks returns works by id with their chapters in order.
func (s *GormStore) ListWorks(ctx context.Context) ([]domain.Work, error) {
	db := s.db.WithContext(ctx)
	var works []WorkModel
	if err := db.Order("id ASC").Find(&works).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Work, 0, len(works))
	if len(works) == 0 {
		return res, nil
	}
	ids := make([]int64, 0, len(works))
	for _, w := range works {
		ids = append(ids, w.ID)
	}
	var chapters []ChapterModel
	if err := db.Where("work_id IN ?", ids).Order("work_id ASC").Order("position ASC").Order("id ASC").Find(&chapters).Error; err != nil {
		return nil, err
	}
	byWork := make(map[int64][]domain.ChapterSummary, len(works))
	for _, c := range chapters {
		byWork[c.WorkID] = append(byWork[c.WorkID], domain.ChapterSummary{ID: c.ID, Title: c.Title, Order: c.Position})
	}
	for _, w := range works {
		summaries := byWork[w.ID]
		if summaries == nil {
			summaries = []domain.ChapterSummary{}
		}
		res = append(res, domain.Work{ID: w.ID, Name: w.Name, Chapters: summaries})
	}
	return res, nil
}

// GetChapter returns a chapter by id.
func (s *GormStore) GetChapter(ctx context.Context, id int64) (domain.Chapter, bool, error) {
	var model ChapterModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Chapter{}, false, nil
		}
		return domain.Chapter{}, false, err
	}
	return domain.Chapter{ID: model.ID, WorkID: model.WorkID, Title: model.Title, Order: model.Position}, true, nil
}

// ListParagraphs returns the paragraphs of a chapter in order.
func (s *GormStore) ListParagraphs(ctx context.Context, chapterID int64) ([]domain.Paragraph, error) {
	var models []ParagraphModel
	if err := s.db.WithContext(ctx).Where("chapter_id = ?", chapterID).
		Order("position ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Paragraph, 0, len(models))
	for _, m := range models {
		res = append(res, domain.Paragraph{ID: m.ID, ChapterID: m.ChapterID, Order: m.Position, Content: m.Content})
	}
	return res, nil
}

// ImportChapter finds or creates the work, appends a chapter and stores its
// paragraphs in one transaction.
func (s *GormStore) ImportChapter(ctx context.Context, workName, chapterTitle string, paragraphs []string) (domain.ImportResult, error) {
	var result domain.ImportResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&WorkModel{Name: workName, CreatedAt: now}).Error; err != nil {
			return fmt.Errorf("upsert work: %w", err)
		}
		var work WorkModel
		query := tx.Where("name = ?", workName)
		if tx.Dialector.Name() == "postgres" {
			// serialises concurrent imports into the same work
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.First(&work).Error; err != nil {
			return fmt.Errorf("load work: %w", err)
		}

		var maxPosition int
		if err := tx.Model(&ChapterModel{}).
			Where("work_id = ?", work.ID).
			Select("COALESCE(MAX(position), 0)").
			Scan(&maxPosition).Error; err != nil {
			return fmt.Errorf("chapter position: %w", err)
		}
		position := maxPosition + 1
		if chapterTitle == "" {
			chapterTitle = DefaultChapterTitle(position)
		}
		chapter := ChapterModel{WorkID: work.ID, Title: chapterTitle, Position: position, CreatedAt: now}
		if err := tx.Create(&chapter).Error; err != nil {
			return fmt.Errorf("create chapter: %w", err)
		}

		models := make([]ParagraphModel, 0, len(paragraphs))
		for i, content := range paragraphs {
			models = append(models, ParagraphModel{ChapterID: chapter.ID, Position: i + 1, Content: content})
		}
		if len(models) > 0 {
			if err := tx.CreateInBatches(&models, paragraphBatchSize).Error; err != nil {
				return fmt.Errorf("create paragraphs: %w", err)
			}
		}
		result = domain.ImportResult{WorkID: work.ID, ChapterID: chapter.ID, Paragraphs: len(models)}
		return nil
	})
	return result, err
}

// LatestProgress returns the most recently updated progress row of a user.
func (s *GormStore) LatestProgress(ctx context.Context, userID int64) (domain.Progress, bool, error) {
	var model ProgressModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Progress{}, false, nil
		}
		return domain.Progress{}, false, err
	}
	return progressFromModel(model), true, nil
}

// RecordProgress upserts the (user, chapter) row and adds practice time in
// one transaction. Completion is only ever set, never cleared.
func (s *GormStore) RecordProgress(ctx context.Context, u domain.ProgressUpdate) (domain.Progress, error) {
	var model ProgressModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := ProgressModel{
			UserID:           u.UserID,
			ChapterID:        u.ChapterID,
			CurrentParagraph: u.CurrentParagraph,
			IsCompleted:      u.MarkCompleted,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		updates := []string{"current_paragraph", "updated_at"}
		if u.MarkCompleted {
			updates = append(updates, "is_completed")
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "chapter_id"}},
			DoUpdates: clause.AssignmentColumns(updates),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert progress: %w", err)
		}
		if err := tx.Where("user_id = ? AND chapter_id = ?", u.UserID, u.ChapterID).First(&model).Error; err != nil {
			return fmt.Errorf("load progress: %w", err)
		}
		if u.PracticeSeconds > 0 {
			if err := incrementStat(tx, u.UserID, "practice_seconds", u.PracticeSeconds, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.Progress{}, err
	}
	return progressFromModel(model), nil
}

// RecordVisit ensures the user, marks the day as visited and adds usage
// time in one transaction.
func (s *GormStore) RecordVisit(ctx context.Context, externalID string, day time.Time, usageSeconds int64) (domain.User, error) {
	var user UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(&UserModel{ExternalID: externalID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
			return fmt.Errorf("ensure user: %w", err)
		}
		if err := tx.Where("external_id = ?", externalID).First(&user).Error; err != nil {
			return fmt.Errorf("load user: %w", err)
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "day"}},
			DoNothing: true,
		}).Create(&LoginRecordModel{UserID: user.ID, Day: day, CreatedAt: now}).Error; err != nil {
			return fmt.Errorf("record login: %w", err)
		}
		if usageSeconds > 0 {
			if err := incrementStat(tx, user.ID, "usage_seconds", usageSeconds, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(user), nil
}

// incrementStat creates the stat row when missing, then adds delta to column
// with a single UPDATE so concurrent increments are not lost.
func incrementStat(tx *gorm.DB, userID int64, column string, delta int64, now time.Time) error {
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&StatModel{UserID: userID, CreatedAt: now, UpdatedAt: now}).Error; err != nil {
		return fmt.Errorf("ensure stat: %w", err)
	}
	if err := tx.Model(&StatModel{}).
		Where("user_id = ?", userID).
		Updates(map[string]any{
			column:       gorm.Expr(column+" + ?", delta),
			"updated_at": now,
		}).Error; err != nil {
		return fmt.Errorf("increment %s: %w", column, err)
	}
	return nil
}

// GetStat returns the counters of a user.
func (s *GormStore) GetStat(ctx context.Context, userID int64) (domain.Stat, bool, error) {
	var model StatModel
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Stat{}, false, nil
		}
		return domain.Stat{}, false, err
	}
	return domain.Stat{
		UserID:          model.UserID,
		UsageSeconds:    model.UsageSeconds,
		PracticeSeconds: model.PracticeSeconds,
	}, true, nil
}

// AggregateStats averages the counters over all stat rows.
func (s *GormStore) AggregateStats(ctx context.Context) (domain.StatAggregate, error) {
	var row struct {
		Users       int64
		AvgUsage    *float64
		AvgPractice *float64
	}
	if err := s.db.WithContext(ctx).Model(&StatModel{}).
		Select("COUNT(*) AS users, " +
			"CAST(AVG(usage_seconds) AS DOUBLE PRECISION) AS avg_usage, " +
			"CAST(AVG(practice_seconds) AS DOUBLE PRECISION) AS avg_practice").
		Scan(&row).Error; err != nil {
		return domain.StatAggregate{}, err
	}
	return domain.StatAggregate{
		Users:              row.Users,
		AvgUsageSeconds:    row.AvgUsage,
		AvgPracticeSeconds: row.AvgPractice,
	}, nil
}

// CountLoginDays returns on how many distinct days the user checked in.
func (s *GormStore) CountLoginDays(ctx context.Context, userID int64) (int64, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&LoginRecordModel{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CreateErrorReport appends a report.
func (s *GormStore) CreateErrorReport(ctx context.Context, report domain.ErrorReport) (domain.ErrorReport, error) {
	model := errorReportToModel(report)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.ErrorReport{}, err
	}
	return errorReportFromModel(model), nil
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:          m.ID,
		ExternalID:  m.ExternalID,
		DisplayName: m.DisplayName,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func progressFromModel(m ProgressModel) domain.Progress {
	return domain.Progress{
		ID:               m.ID,
		UserID:           m.UserID,
		ChapterID:        m.ChapterID,
		CurrentParagraph: m.CurrentParagraph,
		IsCompleted:      m.IsCompleted,
		UpdatedAt:        m.UpdatedAt,
	}
}

func errorReportToModel(r domain.ErrorReport) ErrorReportModel {
	var meta []byte
	if len(r.Context) > 0 {
		meta, _ = json.Marshal(r.Context)
	}
	return ErrorReportModel{
		ID:        r.ID,
		UserID:    r.UserID,
		ChapterID: r.ChapterID,
		Paragraph: r.Paragraph,
		Message:   r.Message,
		Context:   meta,
		CreatedAt: r.CreatedAt,
	}
}

func errorReportFromModel(m ErrorReportModel) domain.ErrorReport {
	var meta map[string]string
	if len(m.Context) > 0 {
		_ = json.Unmarshal(m.Context, &meta)
	}
	return domain.ErrorReport{
		ID:        m.ID,
		UserID:    m.UserID,
		ChapterID: m.ChapterID,
		Paragraph: m.Paragraph,
		Message:   m.Message,
		Context:   meta,
		CreatedAt: m.CreatedAt,
	}
}

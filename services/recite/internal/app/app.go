package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"recite/pkg/store"
)

const (
	defaultImportMaxParagraphRunes = 300
	maxReportMessageRunes          = 2000
)

// Config holds runtime configuration for the core application.
type Config struct {
	DatabaseURL string
	Store       store.Store
	// Location decides where a calendar day starts for check-ins.
	Location                *time.Location
	ImportMaxParagraphRunes int
	// Now is overridable in tests.
	Now func() time.Time
}

// App holds the recitation business rules on top of a Store.
type App struct {
	store                   store.Store
	location                *time.Location
	importMaxParagraphRunes int
	now                     func() time.Time
}

// New constructs the application, opening Postgres when no store is given.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	maxRunes := cfg.ImportMaxParagraphRunes
	if maxRunes <= 0 {
		maxRunes = defaultImportMaxParagraphRunes
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &App{
		store:                   dataStore,
		location:                loc,
		importMaxParagraphRunes: maxRunes,
		now:                     now,
	}, nil
}

// today returns local midnight of the current day in the configured zone.
func (a *App) today() time.Time {
	t := a.now().In(a.location)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, a.location)
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Close releases the store when it holds resources such as a connection pool.
func (a *App) Close() error {
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"recite/pkg/domain"
)

type progressKey struct {
	userID    int64
	chapterID int64
}

type loginKey struct {
	userID int64
	day    int64
}

// MemoryStore keeps everything in-process. It is used by tests and local
// runs without a database.
type MemoryStore struct {
	mu sync.Mutex

	nextID     int64
	lastTick   time.Time
	users      map[int64]domain.User
	byExternal map[string]int64
	works      []domain.Work // chapters kept in Work.Chapters
	chapters   map[int64]domain.Chapter
	paragraphs map[int64][]domain.Paragraph
	progress   map[progressKey]domain.Progress
	stats      map[int64]domain.Stat
	logins     map[loginKey]struct{}
	reports    []domain.ErrorReport
	posts      map[string]domain.Post
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]domain.User),
		byExternal: make(map[string]int64),
		chapters:   make(map[int64]domain.Chapter),
		paragraphs: make(map[int64][]domain.Paragraph),
		progress:   make(map[progressKey]domain.Progress),
		stats:      make(map[int64]domain.Stat),
		logins:     make(map[loginKey]struct{}),
		posts:      make(map[string]domain.Post),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// now is strictly increasing so that "most recently updated" is well defined.
func (m *MemoryStore) now() time.Time {
	t := time.Now().UTC()
	if !t.After(m.lastTick) {
		t = m.lastTick.Add(time.Nanosecond)
	}
	m.lastTick = t
	return t
}

// EnsureUser creates the user or refreshes its display name.
func (m *MemoryStore) EnsureUser(_ context.Context, externalID, displayName string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureUserLocked(externalID)
	if displayName != "" {
		u.DisplayName = displayName
	}
	u.UpdatedAt = m.now()
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) ensureUserLocked(externalID string) domain.User {
	if id, ok := m.byExternal[externalID]; ok {
		return m.users[id]
	}
	now := m.now()
	u := domain.User{ID: m.id(), ExternalID: externalID, CreatedAt: now, UpdatedAt: now}
	m.users[u.ID] = u
	m.byExternal[externalID] = u.ID
	return u
}

// GetUserByExternalID looks up a user by its login token.
func (m *MemoryStore) GetUserByExternalID(_ context.Context, externalID string) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byExternal[externalID]
	if !ok {
		return domain.User{}, false, nil
	}
	return m.users[id], true, nil
}

// ListWorks returns works in creation order with chapters in order.
func (m *MemoryStore) ListWorks(_ context.Context) ([]domain.Work, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Work, 0, len(m.works))
	for _, w := range m.works {
		chapters := make([]domain.ChapterSummary, len(w.Chapters))
		copy(chapters, w.Chapters)
		sort.SliceStable(chapters, func(i, j int) bool { return chapters[i].Order < chapters[j].Order })
		res = append(res, domain.Work{ID: w.ID, Name: w.Name, Chapters: chapters})
	}
	return res, nil
}

// GetChapter returns a chapter by id.
func (m *MemoryStore) GetChapter(_ context.Context, id int64) (domain.Chapter, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.chapters[id]
	return c, ok, nil
}

// ListParagraphs returns the paragraphs of a chapter in order.
func (m *MemoryStore) ListParagraphs(_ context.Context, chapterID int64) ([]domain.Paragraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Paragraph, len(m.paragraphs[chapterID]))
	copy(res, m.paragraphs[chapterID])
	return res, nil
}

// ImportChapter finds or creates the work and appends a chapter.
func (m *MemoryStore) ImportChapter(_ context.Context, workName, chapterTitle string, paragraphs []string) (domain.ImportResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := -1
	for i, w := range m.works {
		if w.Name == workName {
			idx = i
			break
		}
	}
	if idx < 0 {
		m.works = append(m.works, domain.Work{ID: m.id(), Name: workName})
		idx = len(m.works) - 1
	}
	work := &m.works[idx]
	position := 1
	for _, c := range work.Chapters {
		if c.Order >= position {
			position = c.Order + 1
		}
	}
	if chapterTitle == "" {
		chapterTitle = DefaultChapterTitle(position)
	}
	chapter := domain.Chapter{ID: m.id(), WorkID: work.ID, Title: chapterTitle, Order: position}
	m.chapters[chapter.ID] = chapter
	work.Chapters = append(work.Chapters, domain.ChapterSummary{ID: chapter.ID, Title: chapter.Title, Order: chapter.Order})
	items := make([]domain.Paragraph, 0, len(paragraphs))
	for i, content := range paragraphs {
		items = append(items, domain.Paragraph{ID: m.id(), ChapterID: chapter.ID, Order: i + 1, Content: content})
	}
	m.paragraphs[chapter.ID] = items
	return domain.ImportResult{WorkID: work.ID, ChapterID: chapter.ID, Paragraphs: len(items)}, nil
}

// LatestProgress returns the most recently updated progress row of a user.
func (m *MemoryStore) LatestProgress(_ context.Context, userID int64) (domain.Progress, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest domain.Progress
		found  bool
	)
	for key, p := range m.progress {
		if key.userID != userID {
			continue
		}
		if !found || p.UpdatedAt.After(latest.UpdatedAt) || (p.UpdatedAt.Equal(latest.UpdatedAt) && p.ID > latest.ID) {
			latest = p
			found = true
		}
	}
	return latest, found, nil
}

// RecordProgress upserts the (user, chapter) row and adds practice time.
func (m *MemoryStore) RecordProgress(_ context.Context, u domain.ProgressUpdate) (domain.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := progressKey{userID: u.UserID, chapterID: u.ChapterID}
	p, ok := m.progress[key]
	if !ok {
		p = domain.Progress{ID: m.id(), UserID: u.UserID, ChapterID: u.ChapterID}
	}
	p.CurrentParagraph = u.CurrentParagraph
	if u.MarkCompleted {
		p.IsCompleted = true
	}
	p.UpdatedAt = m.now()
	m.progress[key] = p
	if u.PracticeSeconds > 0 {
		st := m.stats[u.UserID]
		st.UserID = u.UserID
		st.PracticeSeconds += u.PracticeSeconds
		m.stats[u.UserID] = st
	}
	return p, nil
}

// RecordVisit ensures the user, marks the day and adds usage time.
func (m *MemoryStore) RecordVisit(_ context.Context, externalID string, day time.Time, usageSeconds int64) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.ensureUserLocked(externalID)
	m.logins[loginKey{userID: u.ID, day: day.Unix()}] = struct{}{}
	if usageSeconds > 0 {
		st := m.stats[u.ID]
		st.UserID = u.ID
		st.UsageSeconds += usageSeconds
		m.stats[u.ID] = st
	}
	return u, nil
}

// GetStat returns the counters of a user.
func (m *MemoryStore) GetStat(_ context.Context, userID int64) (domain.Stat, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[userID]
	return st, ok, nil
}

// AggregateStats averages the counters over all stat rows.
func (m *MemoryStore) AggregateStats(_ context.Context) (domain.StatAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	agg := domain.StatAggregate{Users: int64(len(m.stats))}
	if agg.Users == 0 {
		return agg, nil
	}
	var usage, practice float64
	for _, st := range m.stats {
		usage += float64(st.UsageSeconds)
		practice += float64(st.PracticeSeconds)
	}
	avgUsage := usage / float64(agg.Users)
	avgPractice := practice / float64(agg.Users)
	agg.AvgUsageSeconds = &avgUsage
	agg.AvgPracticeSeconds = &avgPractice
	return agg, nil
}

// CountLoginDays returns on how many distinct days the user checked in.
func (m *MemoryStore) CountLoginDays(_ context.Context, userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key := range m.logins {
		if key.userID == userID {
			n++
		}
	}
	return n, nil
}

// CreateErrorReport appends a report.
func (m *MemoryStore) CreateErrorReport(_ context.Context, r domain.ErrorReport) (domain.ErrorReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.id()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = m.now()
	}
	m.reports = append(m.reports, r)
	return r, nil
}

// ErrorReports returns a copy of all stored reports.
func (m *MemoryStore) ErrorReports() []domain.ErrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.ErrorReport, len(m.reports))
	copy(res, m.reports)
	return res
}

// CreatePost stores a new post.
func (m *MemoryStore) CreatePost(_ context.Context, p domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
	return nil
}

// GetPost retrieves a post.
func (m *MemoryStore) GetPost(_ context.Context, id string) (domain.Post, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[id]
	return p, ok, nil
}

// ListPosts returns all posts, newest first.
func (m *MemoryStore) ListPosts(_ context.Context) ([]domain.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Post, 0, len(m.posts))
	for _, p := range m.posts {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// UpdatePost overwrites a post.
func (m *MemoryStore) UpdatePost(_ context.Context, p domain.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.posts[p.ID] = p
	return nil
}

// DeletePost removes a post and reports whether it existed.
func (m *MemoryStore) DeletePost(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.posts[id]
	delete(m.posts, id)
	return ok, nil
}

package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
)

// MemoryStorage backs every repository with in-process maps. Used by tests
// and single-process deployments.
type MemoryStorage struct {
	interactions map[string][]domain.Interaction
	posts        map[string]domain.CandidatePost
	users        map[string]*domain.User
	tasks        map[string][]byte
	dlq          map[string]*domain.DLQEntry
	dlqOrder     []string
	mu           sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		interactions: make(map[string][]domain.Interaction),
		posts:        make(map[string]domain.CandidatePost),
		users:        make(map[string]*domain.User),
		tasks:        make(map[string][]byte),
		dlq:          make(map[string]*domain.DLQEntry),
	}
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }

// AddInteraction appends to a user's interaction log.
func (s *MemoryStorage) AddInteraction(in domain.Interaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[in.UserAlias] = append(s.interactions[in.UserAlias], in)
}

// AddPost adds or replaces a candidate post.
func (s *MemoryStorage) AddPost(p domain.CandidatePost) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.ID] = p
}

// AddUser adds or replaces a user.
func (s *MemoryStorage) AddUser(u domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = &u
}

// -----------------------------------------------------------------------------
// Interaction Repository
// -----------------------------------------------------------------------------

type InteractionRepo struct {
	store *MemoryStorage
}

func NewInteractionRepo(store *MemoryStorage) *InteractionRepo {
	return &InteractionRepo{store: store}
}

func (r *InteractionRepo) ListByUser(
	ctx context.Context,
	userID string,
	limit int,
) ([]domain.Interaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	src := r.store.interactions[userID]
	out := make([]domain.Interaction, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Candidate Repository
// -----------------------------------------------------------------------------

type CandidateRepo struct {
	store *MemoryStorage
}

func NewCandidateRepo(store *MemoryStorage) *CandidateRepo {
	return &CandidateRepo{store: store}
}

func (r *CandidateRepo) ListCandidates(
	ctx context.Context,
	q storage.CandidateQuery,
) ([]domain.CandidatePost, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	exclude := make(map[string]bool, len(q.ExcludePostIDs))
	for _, id := range q.ExcludePostIDs {
		exclude[id] = true
	}

	out := make([]domain.CandidatePost, 0, len(r.store.posts))
	for _, p := range r.store.posts {
		if exclude[p.ID] {
			continue
		}
		if !q.Since.IsZero() && p.CreatedAt.Before(q.Since) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// User Repository
// -----------------------------------------------------------------------------

type UserRepo struct {
	store *MemoryStorage
}

func NewUserRepo(store *MemoryStorage) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[userID]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// -----------------------------------------------------------------------------
// Task Repository
// -----------------------------------------------------------------------------

// TaskRepo stores JSON snapshots so callers never share a *Task.
type TaskRepo struct {
	store *MemoryStorage
}

func NewTaskRepo(store *MemoryStorage) *TaskRepo {
	return &TaskRepo{store: store}
}

func (r *TaskRepo) Save(ctx context.Context, task *domain.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.tasks[task.ID] = data
	return nil
}

func (r *TaskRepo) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	r.store.mu.RLock()
	data, ok := r.store.tasks[taskID]
	r.store.mu.RUnlock()
	if !ok {
		return nil, storage.ErrTaskNotFound
	}
	var t domain.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

func (r *TaskRepo) Delete(ctx context.Context, taskID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	delete(r.store.tasks, taskID)
	return nil
}

// -----------------------------------------------------------------------------
// DLQ Repository
// -----------------------------------------------------------------------------

type DLQRepo struct {
	store *MemoryStorage
}

func NewDLQRepo(store *MemoryStorage) *DLQRepo {
	return &DLQRepo{store: store}
}

func (r *DLQRepo) Add(ctx context.Context, e *domain.DLQEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if _, exists := r.store.dlq[e.OriginalTaskID]; !exists {
		r.store.dlqOrder = append(r.store.dlqOrder, e.OriginalTaskID)
	}
	cp := *e
	r.store.dlq[e.OriginalTaskID] = &cp
	return nil
}

func (r *DLQRepo) Get(ctx context.Context, taskID string) (*domain.DLQEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.dlq[taskID]
	if !ok {
		return nil, storage.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

// ordered returns entries sorted by timestamp ascending. Caller holds the lock.
func (r *DLQRepo) ordered() []*domain.DLQEntry {
	out := make([]*domain.DLQEntry, 0, len(r.store.dlqOrder))
	for _, id := range r.store.dlqOrder {
		cp := *r.store.dlq[id]
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out
}

func (r *DLQRepo) ListByKind(
	ctx context.Context,
	kind string,
	limit int,
) ([]*domain.DLQEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	all := r.ordered()
	out := make([]*domain.DLQEntry, 0)
	for i := len(all) - 1; i >= 0; i-- {
		if all[i].ErrorType != kind {
			continue
		}
		out = append(out, all[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (r *DLQRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.DLQEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.DLQEntry, 0)
	for _, e := range r.ordered() {
		if !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *DLQRepo) CountByKind(ctx context.Context) (map[string]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	counts := make(map[string]int)
	for _, e := range r.store.dlq {
		counts[e.ErrorType]++
	}
	return counts, nil
}

func (r *DLQRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	kept := r.store.dlqOrder[:0]
	removed := 0
	for _, id := range r.store.dlqOrder {
		if r.store.dlq[id].Timestamp.Before(cutoff) {
			delete(r.store.dlq, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.store.dlqOrder = kept
	return removed, nil
}

func (r *DLQRepo) Count(ctx context.Context) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	return len(r.store.dlq), nil
}

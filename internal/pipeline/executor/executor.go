// Package executor runs one attempt of a ranking-generation task.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/errkind"
	"github.com/vietddude/feedrank/internal/pipeline/metrics"
	"github.com/vietddude/feedrank/internal/ranking/cache"
	"github.com/vietddude/feedrank/internal/ranking/score"
	"github.com/vietddude/feedrank/internal/ranking/selector"
)

// Stage names reported with progress.
const (
	StageHealth      = "health_check"
	StageParams      = "validating_params"
	StageUser        = "validating_user"
	StagePermission  = "checking_permissions"
	StageData        = "checking_data"
	StageScoring     = "scoring"
	StageCacheWrite  = "caching_results"
	StageComplete    = "complete"
	StageCachedReply = "served_from_cache"
)

// Config holds executor settings.
type Config struct {
	// SoftTimeout bounds one attempt. Exceeding it yields a retryable
	// timeout error.
	SoftTimeout time.Duration

	// InteractionLimit caps the history loaded per user.
	InteractionLimit int

	// CandidatePool caps the candidates loaded before selection.
	CandidatePool int

	// CandidateWindow is how far back candidates are sourced. Zero uses
	// the scoring decay window.
	CandidateWindow time.Duration
}

// DefaultConfig returns a 240s soft timeout, 1000 interactions and a
// 500-post candidate pool.
func DefaultConfig() Config {
	return Config{
		SoftTimeout:      240 * time.Second,
		InteractionLimit: 1000,
		CandidatePool:    500,
	}
}

// Dependencies are the collaborators an executor reads from.
type Dependencies struct {
	Interactions storage.InteractionRepository
	Candidates   storage.CandidateRepository
	Users        storage.UserRepository
	Cache        *cache.ResultCache
	Engine       *score.Engine
	Health       HealthChecker
	Permissions  PermissionChecker
	Recorder     metrics.Recorder
}

// ProgressFunc receives coarse progress checkpoints.
type ProgressFunc func(percent int, stage string)

// Result is the outcome of a successful attempt.
type Result struct {
	Ranking *domain.RankingResult
	Params  domain.TaskParams
	// ResultRef is the cache key holding Ranking, or "" when the cache
	// write failed.
	ResultRef string
	FromCache bool
	Elapsed   time.Duration
}

// Executor runs the per-attempt step sequence.
type Executor struct {
	cfg      Config
	deps     Dependencies
	selector *selector.Selector
	log      *slog.Logger
}

// New creates an executor. Missing health and permission checkers default
// to a no-op check and SuspensionChecker.
func New(cfg Config, deps Dependencies) *Executor {
	def := DefaultConfig()
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = def.SoftTimeout
	}
	if cfg.InteractionLimit <= 0 {
		cfg.InteractionLimit = def.InteractionLimit
	}
	if cfg.CandidatePool <= 0 {
		cfg.CandidatePool = def.CandidatePool
	}
	if deps.Permissions == nil {
		deps.Permissions = SuspensionChecker{}
	}
	if deps.Recorder == nil {
		deps.Recorder = metrics.Nop{}
	}
	if deps.Engine == nil {
		deps.Engine = score.NewEngine(domain.DefaultScoringWeights(), nil, nil)
	}

	return &Executor{
		cfg:      cfg,
		deps:     deps,
		selector: selector.New(deps.Engine),
		log:      slog.Default().With("component", "executor"),
	}
}

// Run executes one attempt of task under the soft timeout. Every returned
// error is an *errkind.Error.
func (e *Executor) Run(ctx context.Context, task *domain.Task, progress ProgressFunc) (*Result, error) {
	if progress == nil {
		progress = func(int, string) {}
	}

	ctx, cancel := context.WithTimeout(ctx, e.cfg.SoftTimeout)
	defer cancel()

	start := time.Now()
	res, err := e.run(ctx, task, progress)
	if err != nil {
		return nil, typed(ctx, err)
	}
	res.Elapsed = time.Since(start)
	return res, nil
}

func typed(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		if kerr, ok := errkind.As(err); ok && kerr.Kind == errkind.Timeout {
			return kerr
		}
		return errkind.Wrap(errkind.Timeout, "soft timeout exceeded", err)
	}
	if kerr, ok := errkind.As(err); ok {
		return kerr
	}
	return errkind.Wrap(errkind.Classify(err), "ranking generation failed", err)
}

func (e *Executor) run(ctx context.Context, task *domain.Task, progress ProgressFunc) (*Result, error) {
	log := e.log.With("task_id", task.ID, "user_id", task.UserID, "attempt", task.Attempt)

	// 1. Dependencies
	progress(0, StageHealth)
	if e.deps.Health != nil {
		if err := e.deps.Health.Check(ctx); err != nil {
			return nil, err
		}
	}

	// 2. Parameters
	progress(10, StageParams)
	params, err := ValidateParams(task.RawParams)
	if err != nil {
		return nil, err
	}

	// 3. User
	progress(20, StageUser)
	user, err := e.validateUser(ctx, task.UserID)
	if err != nil {
		return nil, err
	}

	// 4. Permission
	progress(20, StagePermission)
	allowed, err := e.deps.Permissions.CanRequestRankings(ctx, user)
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreUnavailable, "permission lookup failed", err)
	}
	if !allowed {
		return nil, errkind.Newf(errkind.PermissionDenied, "user %s may not request rankings", task.UserID)
	}

	key := cache.AsyncRankingsKey(task.UserID)
	if !params.ForceRefresh && e.deps.Cache != nil {
		if cached, ok := e.deps.Cache.Get(ctx, key); ok {
			if ranking, ok := fromCache(cached, task, params); ok {
				log.Debug("Serving cached rankings", "count", ranking.Count)
				progress(100, StageCachedReply)
				return &Result{Ranking: ranking, Params: params, ResultRef: key, FromCache: true}, nil
			}
			log.Debug("Cached rankings too short for limit", "cached", cached.Count, "limit", params.Limit)
		}
	}

	// 5. Data sufficiency
	progress(40, StageData)
	var interactions []domain.Interaction
	if !domain.IsPlaceholderUser(task.UserID) {
		interactions, err = e.deps.Interactions.ListByUser(ctx, task.UserID, e.cfg.InteractionLimit)
		if err != nil {
			return nil, errkind.Wrap(errkind.StoreUnavailable, "failed to load interactions", err)
		}
		if len(interactions) == 0 {
			return nil, errkind.Newf(errkind.InsufficientData, "no interactions recorded for user %s", task.UserID)
		}
	}

	// 6. Scoring
	progress(80, StageScoring)
	now := e.deps.Engine.Now()
	candidates, err := e.deps.Candidates.ListCandidates(ctx, storage.CandidateQuery{
		UserID:         task.UserID,
		Since:          now.Add(-e.candidateWindow()),
		Limit:          e.cfg.CandidatePool,
		ExcludePostIDs: interactedPostIDs(interactions),
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.StoreUnavailable, "failed to load candidates", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := e.selector.Select(task.UserID, candidates, interactions, now)
	if len(ranked) == 0 {
		return nil, errkind.Newf(errkind.InsufficientData, "no candidates to rank for user %s", task.UserID)
	}
	if len(ranked) > params.Limit {
		ranked = ranked[:params.Limit]
	}

	ranking := &domain.RankingResult{
		UserID:      task.UserID,
		TaskID:      task.ID,
		Rankings:    ranked,
		Count:       len(ranked),
		GeneratedAt: now.UTC(),
		ParamsUsed:  params,
	}

	// 7. Cache write
	progress(80, StageCacheWrite)
	ref := ""
	if e.deps.Cache != nil && e.deps.Cache.Set(ctx, key, ranking, 0) {
		ref = key
		if !e.deps.Cache.Set(ctx, cache.RecommendationsKey(task.UserID), ranking, 0) {
			log.Warn("Failed to refresh recommendations key")
		}
	} else {
		log.Warn("Rankings computed but not cached")
	}

	// 8. Completion
	progress(100, StageComplete)
	e.deps.Recorder.Ranked(ranking.Count)
	log.Info("Rankings generated",
		"count", ranking.Count,
		"candidates", len(candidates),
		"cached", ref != "",
	)

	return &Result{Ranking: ranking, Params: params, ResultRef: ref}, nil
}

// fromCache adapts a cached ranking to the current request. A cached list is
// usable when it holds at least Limit posts or was itself computed with a
// limit no smaller than the requested one.
func fromCache(
	cached *domain.RankingResult,
	task *domain.Task,
	params domain.TaskParams,
) (*domain.RankingResult, bool) {
	if len(cached.Rankings) < params.Limit && cached.ParamsUsed.Limit < params.Limit {
		return nil, false
	}
	out := *cached
	if len(out.Rankings) > params.Limit {
		out.Rankings = out.Rankings[:params.Limit]
	}
	out.Count = len(out.Rankings)
	out.TaskID = task.ID
	out.ParamsUsed = params
	return &out, true
}

func (e *Executor) validateUser(ctx context.Context, userID string) (*domain.User, error) {
	if userID == "" {
		return nil, errkind.New(errkind.InvalidUser, "user id is required")
	}
	if domain.IsPlaceholderUser(userID) {
		return &domain.User{ID: userID, Username: userID}, nil
	}

	user, err := e.deps.Users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return nil, errkind.Wrap(errkind.InvalidUser, "user not found", err)
		}
		return nil, errkind.Wrap(errkind.StoreUnavailable, "failed to load user", err)
	}
	return user, nil
}

func (e *Executor) candidateWindow() time.Duration {
	if e.cfg.CandidateWindow > 0 {
		return e.cfg.CandidateWindow
	}
	days := e.deps.Engine.Weights().TimeDecayDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days * float64(24*time.Hour))
}

func interactedPostIDs(interactions []domain.Interaction) []string {
	if len(interactions) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(interactions))
	out := make([]string, 0, len(interactions))
	for _, in := range interactions {
		if _, ok := seen[in.PostID]; ok {
			continue
		}
		seen[in.PostID] = struct{}{}
		out = append(out, in.PostID)
	}
	return out
}

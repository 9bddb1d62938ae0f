// Package waste caches the signed-in user's submissions and the community
// leaderboard, and derives rank and goal progress from them.
package waste

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/wastepoints/internal/domain"
	apperrors "github.com/pscheid92/wastepoints/internal/errors"
	"github.com/pscheid92/wastepoints/internal/session"
	"golang.org/x/sync/errgroup"
)

// API is the subset of the backend the store needs.
type API interface {
	CreateSubmission(ctx context.Context, userID int64, wasteType domain.WasteType, weightKg float64, date time.Time) (domain.WasteSubmission, error)
	Submissions(ctx context.Context) ([]domain.WasteSubmission, error)
	Dashboard(ctx context.Context, userID int64) (domain.Stats, error)
	Leaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Session is the part of the session manager the store reads and updates.
type Session interface {
	Profile() (domain.UserProfile, bool)
	UpdateProfileFor(ctx context.Context, userID int64, patch domain.ProfilePatch) apperrors.Result
	Subscribe(fn func(session.Snapshot)) func()
}

type SubmitResult struct {
	apperrors.Result
	Submission *domain.WasteSubmission
}

// Summary is everything the dashboard shows.
type Summary struct {
	Profile      domain.UserProfile `json:"profile"`
	Rank         *int               `json:"rank"`
	Goal         float64            `json:"goal"`
	Progress     float64            `json:"progress"`
	PointsToGoal float64            `json:"pointsToGoal"`
	GoalReached  bool               `json:"goalReached"`
}

type Store struct {
	api     API
	session Session
	goal    float64
	clock   clockwork.Clock

	mu            sync.RWMutex
	generation    uint64
	owner         int64
	submissions   []domain.WasteSubmission
	leaderboard   []domain.LeaderboardEntry
	leaderboardAt time.Time
	closed        bool

	unsubscribe func()
}

func NewStore(api API, sess Session, goal float64, clock clockwork.Clock) *Store {
	if goal <= 0 {
		goal = domain.DefaultGoalPoints
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Store{api: api, session: sess, goal: goal, clock: clock}
	if p, ok := sess.Profile(); ok {
		s.owner = p.ID
	}
	s.unsubscribe = sess.Subscribe(s.onSession)
	return s
}

// onSession drops cached data when the user signs out or another user signs in.
func (s *Store) onSession(snap session.Snapshot) {
	var id int64
	if snap.Authenticated() {
		id = snap.Profile.ID
	} else if snap.State == domain.StateLoading {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.owner && id != 0 {
		return
	}
	s.resetLocked()
	s.owner = id
}

// Submit records a submission for the signed-in user and then refreshes
// stats once. Invalid input is rejected without contacting the backend.
func (s *Store) Submit(ctx context.Context, wasteType domain.WasteType, weightKg float64) SubmitResult {
	if err := domain.ValidateWeight(weightKg); err != nil {
		return SubmitResult{Result: apperrors.Failed(apperrors.FieldFailure("weight_kg", "Weight must be a positive number of kilograms."))}
	}
	if !wasteType.Valid() {
		return SubmitResult{Result: apperrors.Failed(apperrors.FieldFailure("waste_type", "Unknown waste type."))}
	}
	profile, ok := s.session.Profile()
	if !ok {
		return SubmitResult{Result: apperrors.Failed(apperrors.AuthorizationFailure(domain.ErrNotAuthenticated.Error()))}
	}

	gen, ok := s.begin()
	if !ok {
		return SubmitResult{Result: apperrors.Failed(errStoreClosed)}
	}

	submission, err := s.api.CreateSubmission(ctx, profile.ID, wasteType, weightKg, s.clock.Now())
	if err != nil {
		slog.InfoContext(ctx, "Submission failed", "user_id", profile.ID, "kind", apperrors.KindOf(err))
		return SubmitResult{Result: apperrors.Failed(err)}
	}

	applied := s.apply(gen, func() {
		s.submissions = slices.Insert(s.submissions, 0, submission)
	})
	if !applied {
		slog.DebugContext(ctx, "Discarding submission for an ended session", "submission_id", submission.ID)
		return SubmitResult{Result: apperrors.Success(), Submission: &submission}
	}
	slog.InfoContext(ctx, "Waste submitted", "user_id", profile.ID, "type", wasteType, "weight_kg", weightKg, "points", submission.Points)

	if res := s.RefreshStats(ctx); !res.OK {
		slog.WarnContext(ctx, "Stats refresh after submission failed", "kind", res.Failure.Kind)
	}
	return SubmitResult{Result: apperrors.Success(), Submission: &submission}
}

// RefreshStats pulls backend-computed totals into the session profile.
func (s *Store) RefreshStats(ctx context.Context) apperrors.Result {
	profile, ok := s.session.Profile()
	if !ok {
		return apperrors.Failed(apperrors.AuthorizationFailure(domain.ErrNotAuthenticated.Error()))
	}
	gen, ok := s.begin()
	if !ok {
		return apperrors.Failed(errStoreClosed)
	}

	stats, err := s.api.Dashboard(ctx, profile.ID)
	if err != nil {
		slog.InfoContext(ctx, "Stats refresh failed", "user_id", profile.ID, "kind", apperrors.KindOf(err))
		return apperrors.Failed(err)
	}
	if !s.current(gen) {
		slog.DebugContext(ctx, "Discarding stale stats", "user_id", profile.ID)
		return apperrors.Success()
	}
	return s.session.UpdateProfileFor(ctx, profile.ID, domain.StatsPatch(stats))
}

// RefreshLeaderboard replaces the cached leaderboard wholesale.
func (s *Store) RefreshLeaderboard(ctx context.Context) apperrors.Result {
	gen, ok := s.begin()
	if !ok {
		return apperrors.Failed(errStoreClosed)
	}

	entries, err := s.api.Leaderboard(ctx)
	if err != nil {
		slog.InfoContext(ctx, "Leaderboard refresh failed", "kind", apperrors.KindOf(err))
		return apperrors.Failed(err)
	}

	now := s.clock.Now()
	if !s.apply(gen, func() {
		s.leaderboard = entries
		s.leaderboardAt = now
	}) {
		slog.DebugContext(ctx, "Discarding stale leaderboard")
	}
	return apperrors.Success()
}

// LoadSubmissions replaces the cached submissions with the backend's list.
func (s *Store) LoadSubmissions(ctx context.Context) apperrors.Result {
	if _, ok := s.session.Profile(); !ok {
		return apperrors.Failed(apperrors.AuthorizationFailure(domain.ErrNotAuthenticated.Error()))
	}
	gen, ok := s.begin()
	if !ok {
		return apperrors.Failed(errStoreClosed)
	}

	submissions, err := s.api.Submissions(ctx)
	if err != nil {
		slog.InfoContext(ctx, "Loading submissions failed", "kind", apperrors.KindOf(err))
		return apperrors.Failed(err)
	}
	s.apply(gen, func() { s.submissions = submissions })
	return apperrors.Success()
}

// Refresh fetches stats and the leaderboard concurrently.
func (s *Store) Refresh(ctx context.Context) apperrors.Result {
	var g errgroup.Group
	g.Go(func() error { return resultErr(s.RefreshStats(ctx)) })
	g.Go(func() error { return resultErr(s.RefreshLeaderboard(ctx)) })
	if err := g.Wait(); err != nil {
		return apperrors.Failed(err)
	}
	return apperrors.Success()
}

func (s *Store) Submissions() []domain.WasteSubmission {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.submissions)
}

func (s *Store) Leaderboard() []domain.LeaderboardEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.leaderboard)
}

// LeaderboardAge reports how long ago the leaderboard was fetched.
func (s *Store) LeaderboardAge() (time.Duration, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.leaderboardAt.IsZero() {
		return 0, false
	}
	return s.clock.Since(s.leaderboardAt), true
}

// CurrentRank is the signed-in user's 1-based leaderboard position.
func (s *Store) CurrentRank() (int, bool) {
	profile, ok := s.session.Profile()
	if !ok {
		return 0, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.RankOf(s.leaderboard, profile.ID)
}

func (s *Store) Goal() float64 { return s.goal }

func (s *Store) ProgressToGoal() float64 {
	return domain.ProgressToGoal(s.points(), s.goal)
}

func (s *Store) PointsToGoal() float64 {
	return domain.PointsToGoal(s.points(), s.goal)
}

func (s *Store) GoalReached() bool {
	return s.points() >= s.goal
}

func (s *Store) Summary() (Summary, bool) {
	profile, ok := s.session.Profile()
	if !ok {
		return Summary{}, false
	}
	sum := Summary{
		Profile:      profile,
		Goal:         s.goal,
		Progress:     domain.ProgressToGoal(profile.TotalPoints, s.goal),
		PointsToGoal: domain.PointsToGoal(profile.TotalPoints, s.goal),
		GoalReached:  profile.TotalPoints >= s.goal,
	}
	if rank, ok := s.CurrentRank(); ok {
		sum.Rank = &rank
	}
	return sum, true
}

// Close detaches the store from the session. Results of in-flight fetches
// are discarded.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.resetLocked()
	s.mu.Unlock()

	s.unsubscribe()
}

func (s *Store) points() float64 {
	profile, ok := s.session.Profile()
	if !ok {
		return 0
	}
	return profile.TotalPoints
}

func (s *Store) resetLocked() {
	s.generation++
	s.submissions = nil
	s.leaderboard = nil
	s.leaderboardAt = time.Time{}
}

func (s *Store) begin() (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, !s.closed
}

func (s *Store) current(gen uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.generation == gen
}

// apply runs fn under the lock when gen is still current.
func (s *Store) apply(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.generation != gen {
		return false
	}
	fn()
	return true
}

var errStoreClosed = apperrors.UnknownFailure("store closed", nil)

func resultErr(res apperrors.Result) error {
	if res.OK {
		return nil
	}
	return res.Failure
}

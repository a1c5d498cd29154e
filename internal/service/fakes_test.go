package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/grading"
	"github.com/sqlquest/sqlquest-api/internal/models"
	"github.com/sqlquest/sqlquest-api/internal/ratelimit"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/sandbox"
	"github.com/sqlquest/sqlquest-api/pkg/ai"
)

type fakeStudentRepo struct {
	mu       sync.Mutex
	students map[string]models.Student
	tiers    map[uint]string
}

func newFakeStudentRepo(students ...models.Student) *fakeStudentRepo {
	repo := &fakeStudentRepo{students: map[string]models.Student{}, tiers: map[uint]string{}}
	for _, s := range students {
		repo.students[s.ExternalID] = s
	}
	return repo
}

func (r *fakeStudentRepo) GetByID(_ context.Context, id uint) (models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.students {
		if s.ID == id {
			return s, nil
		}
	}
	return models.Student{}, gorm.ErrRecordNotFound
}

func (r *fakeStudentRepo) GetByExternalID(_ context.Context, externalID string) (models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.students[externalID]
	if !ok {
		return models.Student{}, gorm.ErrRecordNotFound
	}
	return s, nil
}

func (r *fakeStudentRepo) Create(_ context.Context, student *models.Student) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.students[student.ExternalID] = *student
	return nil
}

func (r *fakeStudentRepo) UpdateTier(_ context.Context, id uint, tier string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers[id] = tier
	for key, s := range r.students {
		if s.ID == id {
			s.Tier = tier
			r.students[key] = s
		}
	}
	return nil
}

func (r *fakeStudentRepo) ListAll(_ context.Context) ([]models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Student, 0, len(r.students))
	for _, s := range r.students {
		out = append(out, s)
	}
	return out, nil
}

func (r *fakeStudentRepo) ListByInstructor(_ context.Context, instructorID uint) ([]models.Student, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Student
	for _, s := range r.students {
		if s.InstructorID != nil && *s.InstructorID == instructorID {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeChallengeRepo struct {
	challenges map[string]models.Challenge
}

func newFakeChallengeRepo(challenges ...models.Challenge) *fakeChallengeRepo {
	repo := &fakeChallengeRepo{challenges: map[string]models.Challenge{}}
	for _, c := range challenges {
		repo.challenges[c.Slug] = c
	}
	return repo
}

func (r *fakeChallengeRepo) GetByID(_ context.Context, id uint) (models.Challenge, error) {
	for _, c := range r.challenges {
		if c.ID == id {
			return c, nil
		}
	}
	return models.Challenge{}, gorm.ErrRecordNotFound
}

func (r *fakeChallengeRepo) GetBySlug(_ context.Context, slug string) (models.Challenge, error) {
	c, ok := r.challenges[slug]
	if !ok {
		return models.Challenge{}, gorm.ErrRecordNotFound
	}
	return c, nil
}

func (r *fakeChallengeRepo) ListActiveByTier(_ context.Context, tier string) ([]models.Challenge, error) {
	var out []models.Challenge
	for _, c := range r.challenges {
		if c.Active && c.Tier == tier {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *fakeChallengeRepo) Create(_ context.Context, challenge *models.Challenge) error {
	challenge.ID = uint(len(r.challenges) + 1)
	r.challenges[challenge.Slug] = *challenge
	return nil
}

func (r *fakeChallengeRepo) UpdateExpectedRows(_ context.Context, id uint, expected datatypes.JSON) error {
	for slug, c := range r.challenges {
		if c.ID == id {
			c.ExpectedRows = expected
			r.challenges[slug] = c
		}
	}
	return nil
}

func (r *fakeChallengeRepo) CountByTier(_ context.Context) (map[string]int64, error) {
	counts := map[string]int64{}
	for _, c := range r.challenges {
		if c.Active {
			counts[c.Tier]++
		}
	}
	return counts, nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []models.Attempt
}

func (r *fakeAttemptRepo) Create(_ context.Context, attempt *models.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt.ID = uint(len(r.attempts) + 1)
	attempt.CreatedAt = time.Now()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeAttemptRepo) GetByID(_ context.Context, id uint) (models.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.ID == id {
			return a, nil
		}
	}
	return models.Attempt{}, gorm.ErrRecordNotFound
}

func (r *fakeAttemptRepo) List(_ context.Context, filter repository.AttemptFilter) ([]models.Attempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Attempt
	for _, a := range r.attempts {
		if filter.StudentID != nil && a.StudentID != *filter.StudentID {
			continue
		}
		if filter.Outcome != "" && a.Outcome != filter.Outcome {
			continue
		}
		out = append(out, a)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) RecentScores(_ context.Context, studentID uint, limit int) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var scores []float64
	for i := len(r.attempts) - 1; i >= 0 && len(scores) < limit; i-- {
		a := r.attempts[i]
		if a.StudentID == studentID && a.Counted() {
			scores = append(scores, a.Score)
		}
	}
	return scores, nil
}

func (r *fakeAttemptRepo) last() models.Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[len(r.attempts)-1]
}

type fakeAdmitter struct {
	decision ratelimit.Decision
}

func (a *fakeAdmitter) Admit(string, ratelimit.Role, time.Time) ratelimit.Decision {
	return a.decision
}

type fakeExecutor struct {
	rows    grading.RowSet
	err     *sandbox.ExecError
	queries []string
}

func (e *fakeExecutor) Execute(_ context.Context, query string, _ sandbox.Budget) (grading.RowSet, *sandbox.ExecError) {
	e.queries = append(e.queries, query)
	if e.err != nil {
		return grading.RowSet{}, e.err
	}
	return e.rows, nil
}

type fakeDetector struct {
	signals []ratelimit.Signal
}

func (d *fakeDetector) Inspect(ratelimit.Observation) []ratelimit.Signal {
	return d.signals
}

type fakeGenerator struct {
	result ai.GenerationResult
	err    error
	inputs []ai.GenerationInput
}

func (g *fakeGenerator) GenerateSQL(_ context.Context, input ai.GenerationInput) (ai.GenerationResult, error) {
	g.inputs = append(g.inputs, input)
	if g.err != nil {
		return ai.GenerationResult{}, g.err
	}
	return g.result, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *captureSink) Deliver(_ context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) byType(eventType events.Type) []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []events.Event
	for _, e := range s.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

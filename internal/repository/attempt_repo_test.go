package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/events"
	"github.com/sqlquest/sqlquest-api/internal/models"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s/repo.db", t.TempDir())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Student{},
		&models.Challenge{},
		&models.Attempt{},
		&models.PipelineEvent{},
	))
	return db
}

func seedStudentAndChallenge(t *testing.T, db *gorm.DB) (models.Student, models.Challenge) {
	t.Helper()
	student := models.Student{ExternalID: "stu-1", Name: "Dana Reyes", Email: "dana@example.com", Role: models.RoleStudent, Tier: models.TierEasy}
	require.NoError(t, db.Create(&student).Error)
	challenge := models.Challenge{Slug: "low-stock", Tier: models.TierEasy, Title: "Low stock", Prompt: "Find items running low.", ReferenceSQL: "SELECT sku, qty FROM inventory WHERE qty < 10", Active: true}
	require.NoError(t, db.Create(&challenge).Error)
	return student, challenge
}

func TestAttemptRepositoryListFiltersByOutcome(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttemptRepository(db)
	student, challenge := seedStudentAndChallenge(t, db)

	good := models.Attempt{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "SELECT sku FROM inventory", Outcome: models.AttemptOutcomeExactMatch, Score: 1}
	bad := models.Attempt{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "DROP TABLE inventory", Outcome: models.AttemptOutcomeRejected, Score: 0}
	require.NoError(t, repo.Create(context.Background(), &good))
	require.NoError(t, repo.Create(context.Background(), &bad))

	attempts, total, err := repo.List(context.Background(), AttemptFilter{
		StudentID: &student.ID,
		Outcome:   models.AttemptOutcomeRejected,
		PageSize:  10,
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, attempts, 1)
	require.Equal(t, "DROP TABLE inventory", attempts[0].RawSQL)
}

func TestAttemptRepositoryRecentScoresSkipsRejected(t *testing.T) {
	db := setupTestDB(t)
	repo := NewAttemptRepository(db)
	student, challenge := seedStudentAndChallenge(t, db)

	base := time.Now().Add(-time.Hour)
	rows := []models.Attempt{
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q1", Outcome: models.AttemptOutcomeIncorrect, Score: 0.2, CreatedAt: base},
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q2", Outcome: models.AttemptOutcomeRejected, Score: 0, CreatedAt: base.Add(time.Minute)},
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q3", Outcome: models.AttemptOutcomePartialMatch, Score: 0.5, CreatedAt: base.Add(2 * time.Minute)},
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q4", Outcome: models.AttemptOutcomeExactMatch, Score: 1, CreatedAt: base.Add(3 * time.Minute)},
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q5", Outcome: models.AttemptOutcomeTimeout, Score: 0, CreatedAt: base.Add(4 * time.Minute)},
		{StudentID: student.ID, ChallengeID: challenge.ID, RawSQL: "q6", Outcome: models.AttemptOutcomeError, Score: 0, CreatedAt: base.Add(5 * time.Minute)},
	}
	for i := range rows {
		require.NoError(t, db.Create(&rows[i]).Error)
	}

	scores, err := repo.RecentScores(context.Background(), student.ID, 2)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 0.5}, scores, "only graded attempts may feed the window")
}

func TestChallengeRepositoryUpdateExpectedRows(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)
	_, challenge := seedStudentAndChallenge(t, db)

	refreshed := datatypes.JSON([]byte(`{"columns":["qty"],"rows":[[7]]}`))
	require.NoError(t, repo.UpdateExpectedRows(context.Background(), challenge.ID, refreshed))

	got, err := repo.GetByID(context.Background(), challenge.ID)
	require.NoError(t, err)
	require.JSONEq(t, string(refreshed), string(got.ExpectedRows))
}

func TestChallengeRepositoryCountByTier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewChallengeRepository(db)

	seed := []models.Challenge{
		{Slug: "a", Tier: models.TierEasy, Title: "A", Prompt: "p", ReferenceSQL: "SELECT 1", Active: true},
		{Slug: "b", Tier: models.TierEasy, Title: "B", Prompt: "p", ReferenceSQL: "SELECT 1", Active: true},
		{Slug: "c", Tier: models.TierHard, Title: "C", Prompt: "p", ReferenceSQL: "SELECT 1", Active: true},
		{Slug: "d", Tier: models.TierHard, Title: "D", Prompt: "p", ReferenceSQL: "SELECT 1", Active: false},
	}
	for i := range seed {
		require.NoError(t, repo.Create(context.Background(), &seed[i]))
	}

	counts, err := repo.CountByTier(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), counts[models.TierEasy])
	require.Equal(t, int64(1), counts[models.TierHard])
	require.Zero(t, counts[models.TierMedium])
}

func TestEventRepositorySaveAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewEventRepository(db)

	event := events.New(events.TypeGradingCompleted, "stu-1", map[string]any{"score": 0.75})
	require.NoError(t, repo.SaveEvent(context.Background(), event))
	other := events.New(events.TypeAbuseSignal, "stu-2", map[string]any{"signal": "rapid_retry"})
	require.NoError(t, repo.SaveEvent(context.Background(), other))

	entries, total, err := repo.List(context.Background(), EventFilter{UserID: "stu-1", PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Len(t, entries, 1)
	require.Equal(t, string(events.TypeGradingCompleted), entries[0].EventType)
	require.Equal(t, event.ID, entries[0].EventID)
}

func TestStudentRepositoryUpdateTier(t *testing.T) {
	db := setupTestDB(t)
	repo := NewStudentRepository(db)
	student, _ := seedStudentAndChallenge(t, db)

	require.NoError(t, repo.UpdateTier(context.Background(), student.ID, models.TierMedium))

	got, err := repo.GetByExternalID(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Equal(t, models.TierMedium, got.Tier)
}

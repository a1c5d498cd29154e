package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/sqlquest/sqlquest-api/internal/adaptive"
	"github.com/sqlquest/sqlquest-api/internal/models"
)

func instructorFixtures() (*fakeStudentRepo, *fakeAttemptRepo) {
	instructorID := uint(10)
	students := newFakeStudentRepo(
		models.Student{ID: 10, ExternalID: "teach-1", Name: "Prof. Oak", Email: "oak@example.com", Role: models.RoleInstructor, Tier: models.TierEasy},
		models.Student{ID: 1, ExternalID: "stu-1", Name: "Dana Reyes", Email: "dana@example.com", Role: models.RoleStudent, Tier: models.TierEasy, InstructorID: &instructorID},
	)
	attempts := &fakeAttemptRepo{}
	return students, attempts
}

func TestListStudentsAveragesCountedAttemptsOnly(t *testing.T) {
	students, attempts := instructorFixtures()
	svc := NewInstructorService(students, attempts, nil, adaptive.NewController(adaptive.DefaultConfig()), zerolog.Nop())

	require.NoError(t, attempts.Create(context.Background(), &models.Attempt{StudentID: 1, ChallengeID: 1, Outcome: models.AttemptOutcomeExactMatch, Score: 1}))
	require.NoError(t, attempts.Create(context.Background(), &models.Attempt{StudentID: 1, ChallengeID: 1, Outcome: models.AttemptOutcomeIncorrect, Score: 0}))
	require.NoError(t, attempts.Create(context.Background(), &models.Attempt{StudentID: 1, ChallengeID: 1, Outcome: models.AttemptOutcomeRejected, Score: 0}))

	progress, err := svc.ListStudents(context.Background(), "teach-1")
	require.NoError(t, err)
	require.Len(t, progress, 1)
	require.Equal(t, "stu-1", progress[0].StudentID)
	require.Equal(t, int64(3), progress[0].Attempts)
	require.InDelta(t, 0.5, progress[0].AverageScore, 1e-9, "rejected attempts do not dilute the average")
}

func TestListStudentsRequiresInstructorRole(t *testing.T) {
	students, attempts := instructorFixtures()
	svc := NewInstructorService(students, attempts, nil, adaptive.NewController(adaptive.DefaultConfig()), zerolog.Nop())

	_, err := svc.ListStudents(context.Background(), "stu-1")
	require.ErrorIs(t, err, ErrNotInstructor)

	_, err = svc.ListStudents(context.Background(), "ghost")
	require.ErrorIs(t, err, ErrStudentNotFound)
}

func TestListAttemptsExposesAbuseSignals(t *testing.T) {
	students, attempts := instructorFixtures()
	svc := NewInstructorService(students, attempts, nil, adaptive.NewController(adaptive.DefaultConfig()), zerolog.Nop())

	require.NoError(t, attempts.Create(context.Background(), &models.Attempt{
		StudentID: 1, ChallengeID: 1, RawSQL: "SELECT 1",
		Outcome: models.AttemptOutcomeExactMatch, Score: 1,
		AbuseSignals: datatypes.JSONMap{"duplicate_submission": true},
	}))
	require.NoError(t, attempts.Create(context.Background(), &models.Attempt{
		StudentID: 1, ChallengeID: 1, RawSQL: "DROP TABLE inventory",
		Outcome: models.AttemptOutcomeRejected, Score: 0,
	}))

	list, total, err := svc.ListAttempts(context.Background(), "teach-1", AttemptQuery{StudentID: "stu-1"})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	require.Equal(t, []string{"duplicate_submission"}, list[0].AbuseSignals)

	rejected, _, err := svc.ListAttempts(context.Background(), "teach-1", AttemptQuery{Outcome: models.AttemptOutcomeRejected})
	require.NoError(t, err)
	require.Len(t, rejected, 1)
	require.Equal(t, "DROP TABLE inventory", rejected[0].SQL)

	_, _, err = svc.ListAttempts(context.Background(), "teach-1", AttemptQuery{StudentID: "ghost"})
	require.ErrorIs(t, err, ErrStudentNotFound)

	_, _, err = svc.ListAttempts(context.Background(), "stu-1", AttemptQuery{})
	require.ErrorIs(t, err, ErrNotInstructor)
}

func TestOverrideTier(t *testing.T) {
	students, attempts := instructorFixtures()
	controller := adaptive.NewController(adaptive.DefaultConfig())
	svc := NewInstructorService(students, attempts, nil, controller, zerolog.Nop())

	require.NoError(t, svc.OverrideTier(context.Background(), "teach-1", "stu-1", models.TierHard))
	require.Equal(t, models.TierHard, students.tiers[1])
	require.Equal(t, adaptive.Tier(models.TierHard), controller.Tier("stu-1"))

	require.ErrorIs(t, svc.OverrideTier(context.Background(), "teach-1", "stu-1", "impossible"), ErrInvalidTier)
	require.ErrorIs(t, svc.OverrideTier(context.Background(), "stu-1", "stu-1", models.TierEasy), ErrNotInstructor)
}

func TestChallengeServiceListsForCurrentTier(t *testing.T) {
	students, _ := instructorFixtures()
	challenges := newFakeChallengeRepo(
		models.Challenge{ID: 1, Slug: "easy-one", Tier: models.TierEasy, Title: "Easy", Prompt: "p", ReferenceSQL: "SELECT 1", Active: true},
		models.Challenge{ID: 2, Slug: "hard-one", Tier: models.TierHard, Title: "Hard", Prompt: "p", ReferenceSQL: "SELECT 1", Active: true},
	)
	controller := adaptive.NewController(adaptive.DefaultConfig())
	svc := NewChallengeService(students, challenges, controller, zerolog.Nop())

	list, err := svc.ListForStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "easy-one", list[0].Slug)

	controller.SetTier("stu-1", adaptive.Tier(models.TierHard))
	list, err = svc.ListForStudent(context.Background(), "stu-1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "hard-one", list[0].Slug)
}

func TestChallengeServiceGetBySlugHidesReference(t *testing.T) {
	students, _ := instructorFixtures()
	challenges := newFakeChallengeRepo(
		models.Challenge{ID: 1, Slug: "easy-one", Tier: models.TierEasy, Title: "Easy", Prompt: "p", ReferenceSQL: "SELECT secret", Active: true},
	)
	svc := NewChallengeService(students, challenges, adaptive.NewController(adaptive.DefaultConfig()), zerolog.Nop())

	got, err := svc.GetBySlug(context.Background(), "easy-one")
	require.NoError(t, err)
	require.Equal(t, "easy-one", got.Slug)

	_, err = svc.GetBySlug(context.Background(), "missing")
	require.ErrorIs(t, err, ErrChallengeNotFound)
}

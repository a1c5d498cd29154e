package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/sqlquest/sqlquest-api/internal/grading"
	"github.com/sqlquest/sqlquest-api/internal/models"
	"github.com/sqlquest/sqlquest-api/internal/sandbox"
	"github.com/sqlquest/sqlquest-api/internal/sqlcheck"
)

func TestSeedChallengesComputesExpectedRows(t *testing.T) {
	challenges := newFakeChallengeRepo()
	executor := &fakeExecutor{rows: grading.RowSet{Columns: []string{"qty"}, Rows: [][]any{{int64(200)}}}}
	svc := NewSeedService(challenges, executor, sandbox.Budget{Timeout: time.Second, MaxRows: 500}, nil, zerolog.Nop())

	created, err := svc.SeedChallenges(context.Background(), []ChallengeFixture{{
		Slug: "inventory-anomaly", Tier: models.TierEasy, Title: "Inventory Anomaly",
		Prompt: "How many Widgets?", ReferenceSQL: "SELECT qty FROM inventory WHERE inventory_id = 1",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, created)

	challenge, err := challenges.GetBySlug(context.Background(), "inventory-anomaly")
	require.NoError(t, err)

	var payload struct {
		Columns []string `json:"columns"`
		Rows    [][]any  `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(challenge.ExpectedRows, &payload))
	require.Equal(t, []string{"qty"}, payload.Columns)
	require.Len(t, payload.Rows, 1)
}

func TestSeedChallengesIsIdempotent(t *testing.T) {
	challenges := newFakeChallengeRepo()
	executor := &fakeExecutor{rows: grading.RowSet{Columns: []string{"qty"}, Rows: [][]any{{int64(1)}}}}
	svc := NewSeedService(challenges, executor, sandbox.Budget{Timeout: time.Second, MaxRows: 500}, nil, zerolog.Nop())
	fixtures := []ChallengeFixture{{
		Slug: "low-stock", Tier: models.TierEasy, Title: "Low stock",
		Prompt: "p", ReferenceSQL: "SELECT qty FROM inventory",
	}}

	created, err := svc.SeedChallenges(context.Background(), fixtures)
	require.NoError(t, err)
	require.Equal(t, 1, created)

	created, err = svc.SeedChallenges(context.Background(), fixtures)
	require.NoError(t, err)
	require.Zero(t, created)

	challenge, err := challenges.GetBySlug(context.Background(), "low-stock")
	require.NoError(t, err)
	first := string(challenge.ExpectedRows)

	created, err = svc.SeedChallenges(context.Background(), fixtures)
	require.NoError(t, err)
	require.Zero(t, created)
	challenge, err = challenges.GetBySlug(context.Background(), "low-stock")
	require.NoError(t, err)
	require.Equal(t, first, string(challenge.ExpectedRows))
}

type captureInvalidator struct {
	ids []uint
}

func (c *captureInvalidator) Invalidate(_ context.Context, challengeID uint) {
	c.ids = append(c.ids, challengeID)
}

func TestSeedChallengesRefreshesDriftedExpectedRows(t *testing.T) {
	challenges := newFakeChallengeRepo()
	executor := &fakeExecutor{rows: grading.RowSet{Columns: []string{"qty"}, Rows: [][]any{{int64(1)}}}}
	cache := &captureInvalidator{}
	svc := NewSeedService(challenges, executor, sandbox.Budget{Timeout: time.Second, MaxRows: 500}, cache, zerolog.Nop())
	fixtures := []ChallengeFixture{{
		Slug: "low-stock", Tier: models.TierEasy, Title: "Low stock",
		Prompt: "p", ReferenceSQL: "SELECT qty FROM inventory",
	}}

	_, err := svc.SeedChallenges(context.Background(), fixtures)
	require.NoError(t, err)
	require.Empty(t, cache.ids)

	// the inventory dataset changed, so the reference query answers differently
	executor.rows = grading.RowSet{Columns: []string{"qty"}, Rows: [][]any{{int64(7)}}}
	created, err := svc.SeedChallenges(context.Background(), fixtures)
	require.NoError(t, err)
	require.Zero(t, created)

	challenge, err := challenges.GetBySlug(context.Background(), "low-stock")
	require.NoError(t, err)
	require.Contains(t, string(challenge.ExpectedRows), "7")
	require.Equal(t, []uint{challenge.ID}, cache.ids, "stale cache entries must be dropped")
}

func TestSeedChallengesFailingReference(t *testing.T) {
	challenges := newFakeChallengeRepo()
	executor := &fakeExecutor{err: &sandbox.ExecError{Kind: sandbox.KindRuntimeSQL, Message: "no such column"}}
	svc := NewSeedService(challenges, executor, sandbox.Budget{Timeout: time.Second, MaxRows: 500}, nil, zerolog.Nop())

	_, err := svc.SeedChallenges(context.Background(), []ChallengeFixture{{
		Slug: "broken", Tier: models.TierEasy, Title: "Broken",
		Prompt: "p", ReferenceSQL: "SELECT nope FROM inventory",
	}})
	require.Error(t, err)
}

func TestSeedChallengesRejectsMalformedFixture(t *testing.T) {
	challenges := newFakeChallengeRepo()
	executor := &fakeExecutor{rows: grading.RowSet{Columns: []string{"qty"}, Rows: [][]any{{int64(1)}}}}
	svc := NewSeedService(challenges, executor, sandbox.Budget{Timeout: time.Second, MaxRows: 500}, nil, zerolog.Nop())

	for _, fixture := range []ChallengeFixture{
		{Slug: "Bad Slug", Tier: models.TierEasy, Title: "t", Prompt: "p", ReferenceSQL: "SELECT qty FROM inventory"},
		{Slug: "bad-tier", Tier: "legendary", Title: "t", Prompt: "p", ReferenceSQL: "SELECT qty FROM inventory"},
		{Slug: "bad-sql", Tier: models.TierEasy, Title: "t", Prompt: "p", ReferenceSQL: "DELETE FROM inventory"},
	} {
		_, err := svc.SeedChallenges(context.Background(), []ChallengeFixture{fixture})
		require.Error(t, err, "fixture %s must be rejected", fixture.Slug)
	}
	require.Empty(t, executor.queries, "malformed fixtures never reach the sandbox")
}

func TestDefaultChallengeFixturesValidateAgainstSchema(t *testing.T) {
	schema := sqlcheck.InventorySchema()
	tiers := map[string]bool{}
	for _, fixture := range DefaultChallengeFixtures() {
		require.NoError(t, fixture.validate())
		_, rejection := sqlcheck.Validate(fixture.ReferenceSQL, schema)
		require.Nil(t, rejection, "fixture %s reference SQL must pass the validator", fixture.Slug)
		tiers[fixture.Tier] = true
	}
	require.True(t, tiers[models.TierEasy])
	require.True(t, tiers[models.TierMedium])
	require.True(t, tiers[models.TierHard])
}

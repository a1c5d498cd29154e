package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/sqlquest/sqlquest-api/internal/models"
	"github.com/sqlquest/sqlquest-api/internal/repository"
	"github.com/sqlquest/sqlquest-api/internal/sandbox"
)

// fixtureSchema guards the challenge fixture shape before anything touches
// the database or the sandbox.
var fixtureSchema = jsonschema.MustCompileString("challenge_fixture.json", `{
  "type": "object",
  "required": ["slug", "tier", "title", "prompt", "reference_sql"],
  "properties": {
    "slug": {"type": "string", "pattern": "^[a-z0-9]+(-[a-z0-9]+)*$", "maxLength": 64},
    "tier": {"type": "string", "enum": ["easy", "medium", "hard"]},
    "title": {"type": "string", "minLength": 1},
    "story": {"type": "string"},
    "prompt": {"type": "string", "minLength": 1},
    "reference_sql": {"type": "string", "pattern": "^\\s*(?i)select", "minLength": 8},
    "order_matters": {"type": "boolean"}
  }
}`)

// ChallengeFixture is a seedable challenge definition. The expected result
// set is computed by running the reference SQL against the sandbox, so
// fixtures can never drift from the data they are graded against.
type ChallengeFixture struct {
	Slug         string `json:"slug"`
	Tier         string `json:"tier"`
	Title        string `json:"title"`
	Story        string `json:"story,omitempty"`
	Prompt       string `json:"prompt"`
	ReferenceSQL string `json:"reference_sql"`
	OrderMatters bool   `json:"order_matters,omitempty"`
}

func (f ChallengeFixture) validate() error {
	raw, err := json.Marshal(f)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := fixtureSchema.Validate(doc); err != nil {
		return fmt.Errorf("fixture %q: %w", f.Slug, err)
	}
	return nil
}

// ExpectedInvalidator drops a challenge's cached reference result set after
// the stored answer changes.
type ExpectedInvalidator interface {
	Invalidate(ctx context.Context, challengeID uint)
}

// SeedService loads challenge fixtures into the application database.
type SeedService interface {
	SeedChallenges(ctx context.Context, fixtures []ChallengeFixture) (int, error)
}

type seedService struct {
	challenges repository.ChallengeRepository
	executor   QueryExecutor
	budget     sandbox.Budget
	cache      ExpectedInvalidator
	logger     zerolog.Logger
}

// NewSeedService constructs a seeding service. cache may be nil when no
// expected-result cache is in use.
func NewSeedService(challenges repository.ChallengeRepository, executor QueryExecutor, budget sandbox.Budget, cache ExpectedInvalidator, logger zerolog.Logger) SeedService {
	return &seedService{
		challenges: challenges,
		executor:   executor,
		budget:     budget,
		cache:      cache,
		logger:     logger.With().Str("component", "seed_service").Logger(),
	}
}

func (s *seedService) SeedChallenges(ctx context.Context, fixtures []ChallengeFixture) (int, error) {
	created := 0
	for _, fixture := range fixtures {
		if err := fixture.validate(); err != nil {
			return created, err
		}

		existing, err := s.challenges.GetBySlug(ctx, fixture.Slug)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return created, err
		}
		found := err == nil

		rows, execErr := s.executor.Execute(ctx, fixture.ReferenceSQL, s.budget)
		if execErr != nil {
			return created, fmt.Errorf("reference query for %s failed: %w", fixture.Slug, execErr)
		}

		expected, err := json.Marshal(map[string]any{
			"columns": rows.Columns,
			"rows":    rows.Rows,
		})
		if err != nil {
			return created, fmt.Errorf("encode expected rows for %s: %w", fixture.Slug, err)
		}

		if found {
			// the inventory dataset may have changed since the challenge was
			// stored; refresh the answer so grading never drifts from the data
			if string(existing.ExpectedRows) == string(expected) {
				continue
			}
			if err := s.challenges.UpdateExpectedRows(ctx, existing.ID, datatypes.JSON(expected)); err != nil {
				return created, err
			}
			if s.cache != nil {
				s.cache.Invalidate(ctx, existing.ID)
			}
			s.logger.Info().Str("slug", fixture.Slug).Msg("challenge expected rows refreshed")
			continue
		}

		challenge := models.Challenge{
			Slug:         fixture.Slug,
			Tier:         fixture.Tier,
			Title:        fixture.Title,
			Story:        fixture.Story,
			Prompt:       fixture.Prompt,
			ReferenceSQL: fixture.ReferenceSQL,
			ExpectedRows: datatypes.JSON(expected),
			OrderMatters: fixture.OrderMatters,
			Active:       true,
		}
		if err := s.challenges.Create(ctx, &challenge); err != nil {
			return created, err
		}
		created++
		s.logger.Info().Str("slug", fixture.Slug).Str("tier", fixture.Tier).Msg("challenge seeded")
	}

	return created, nil
}

// DefaultChallengeFixtures returns the built-in warehouse mystery arc.
func DefaultChallengeFixtures() []ChallengeFixture {
	return []ChallengeFixture{
		{
			Slug:   "inventory-anomaly",
			Tier:   models.TierEasy,
			Title:  "Inventory Anomaly",
			Story:  "The New York warehouse reported receiving 500 Widgets, but their system shows a different number in stock. Verify the current Widget inventory in New York.",
			Prompt: "How many Widgets are currently in stock at the New York warehouse?",
			ReferenceSQL: `SELECT i.qty
FROM inventory i
JOIN products p ON i.product_id = p.product_id
JOIN warehouses w ON i.warehouse_id = w.warehouse_id
WHERE p.name = 'Widget' AND w.location = 'New York'`,
		},
		{
			Slug:         "low-stock",
			Tier:         models.TierEasy,
			Title:        "Low Stock Report",
			Story:        "Purchasing wants a quick list of items that are nearly sold out across all warehouses.",
			Prompt:       "List the SKU and quantity of every inventory row with fewer than 10 units.",
			ReferenceSQL: `SELECT sku, qty FROM inventory WHERE qty < 10`,
		},
		{
			Slug:   "supplier-reliability",
			Tier:   models.TierMedium,
			Title:  "Supplier Reliability Check",
			Story:  "We've noticed inconsistencies with Globex's deliveries to Berlin. Analyze their reliability score and shipment history.",
			Prompt: "What is Globex's reliability score and how many shipments have they made to Berlin?",
			ReferenceSQL: `SELECT s.reliability_score, COALESCE(COUNT(sh.shipment_id), 0) AS total_shipments
FROM suppliers s
LEFT JOIN shipments sh ON s.supplier_id = sh.supplier_id
LEFT JOIN warehouses w ON sh.warehouse_id = w.warehouse_id AND w.location = 'Berlin'
WHERE s.name = 'Globex'
GROUP BY s.supplier_id, s.reliability_score`,
		},
		{
			Slug:   "warehouse-capacity",
			Tier:   models.TierMedium,
			Title:  "Warehouse Capacity Crisis",
			Story:  "The Tokyo warehouse is reporting storage issues. Compare their total inventory against their maximum capacity.",
			Prompt: "What percentage of Tokyo's warehouse capacity is currently utilized?",
			ReferenceSQL: `SELECT ROUND(CAST(SUM(i.qty) AS FLOAT) / w.capacity * 100, 2) AS utilization_percentage
FROM inventory i
JOIN warehouses w ON i.warehouse_id = w.warehouse_id
WHERE w.location = 'Tokyo'
GROUP BY w.warehouse_id, w.capacity`,
		},
		{
			Slug:   "suspicious-shipments",
			Tier:   models.TierHard,
			Title:  "Suspicious Shipment Patterns",
			Story:  "Some products are showing up in inventory before their recorded delivery dates. Focus on shipments to Berlin.",
			Prompt: "Find shipments where the received date is earlier than the shipment date.",
			ReferenceSQL: `SELECT p.name, s.name AS supplier, sh.shipment_date, sh.received_date
FROM shipments sh
JOIN products p ON sh.product_id = p.product_id
JOIN suppliers s ON sh.supplier_id = s.supplier_id
JOIN warehouses w ON sh.warehouse_id = w.warehouse_id
WHERE w.location = 'Berlin' AND sh.received_date < sh.shipment_date`,
		},
	}
}

package plans

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

var ErrCatalogNotFound = errors.New("types catalog not found")

// TypesCatalog is the account-level workout types setup. New weeks adopt it
// as their starting custom types; existing weeks keep their own snapshot.
type TypesCatalog struct {
	Types      []string            `json:"types"`
	Categories map[string]Category `json:"categories"`
	Benchmarks map[string]int      `json:"benchmarks"`
}

// Normalize cleans the catalog the same way plan custom types are cleaned.
func (c TypesCatalog) Normalize() TypesCatalog {
	out := TypesCatalog{
		Types:      normalizeTypeNames(c.Types),
		Categories: make(map[string]Category),
		Benchmarks: make(map[string]int),
	}
	for t, cat := range c.Categories {
		if cat.IsValid() && cat != CategoryNone {
			out.Categories[t] = cat
		}
	}
	for t, goal := range c.Benchmarks {
		if goal >= 0 {
			out.Benchmarks[t] = goal
		}
	}
	return out
}

// ApplyCatalog seeds a plan with the account catalog. Only plans with no
// custom types of their own adopt it, keeping older weeks untouched.
func ApplyCatalog(plan WeeklyPlan, catalog TypesCatalog) WeeklyPlan {
	if len(plan.CustomTypes) > 0 {
		return plan
	}
	out := clonePlan(plan)
	out.CustomTypes = append([]string(nil), catalog.Types...)
	for t, cat := range catalog.Categories {
		out.TypeCategories[t] = cat
	}
	for t, goal := range catalog.Benchmarks {
		if _, ok := out.Benchmarks[t]; !ok {
			out.Benchmarks[t] = goal
		}
	}
	return Normalize(out)
}

// CatalogRepo persists the account types catalog as a single JSONB document.
type CatalogRepo struct {
	db *pgxpool.Pool
}

func NewCatalogRepo(db *pgxpool.Pool) *CatalogRepo {
	return &CatalogRepo{db: db}
}

func (r *CatalogRepo) Get(ctx context.Context, accountID string) (catalog *TypesCatalog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "catalogRepo.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var doc []byte
	err = r.db.QueryRow(ctx,
		`SELECT doc FROM account_settings_types WHERE account_id = $1`,
		accountID,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCatalogNotFound
		}
		return nil, fmt.Errorf("get types catalog: %w", err)
	}

	var c TypesCatalog
	if err = json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("unmarshal types catalog: %w", err)
	}
	return &c, nil
}

func (r *CatalogRepo) Save(ctx context.Context, accountID string, catalog TypesCatalog) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "catalogRepo.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	doc, err := json.Marshal(catalog.Normalize())
	if err != nil {
		return fmt.Errorf("marshal types catalog: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO account_settings_types (account_id, doc, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (account_id)
			DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		accountID, doc,
	)
	if err != nil {
		return fmt.Errorf("save types catalog: %w", err)
	}
	return nil
}

// MockCatalogRepo is an in-memory stand-in for CatalogRepo, used in tests.
type MockCatalogRepo struct {
	catalogs map[string]TypesCatalog
}

func NewMockCatalogRepo() *MockCatalogRepo {
	return &MockCatalogRepo{catalogs: make(map[string]TypesCatalog)}
}

func (m *MockCatalogRepo) Get(_ context.Context, accountID string) (*TypesCatalog, error) {
	c, ok := m.catalogs[accountID]
	if !ok {
		return nil, ErrCatalogNotFound
	}
	return &c, nil
}

func (m *MockCatalogRepo) Save(_ context.Context, accountID string, catalog TypesCatalog) error {
	m.catalogs[accountID] = catalog.Normalize()
	return nil
}

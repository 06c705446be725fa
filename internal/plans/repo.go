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

var ErrPlanNotFound = errors.New("weekly plan not found")

// Repo persists weekly plans as one JSONB document per (account, week),
// last-write-wins on the whole document.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Get(ctx context.Context, accountID, weekOfISO string) (plan *WeeklyPlan, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "plansRepo.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var doc []byte
	err = r.db.QueryRow(ctx,
		`SELECT doc FROM weekly_plan WHERE account_id = $1 AND week_of = $2`,
		accountID, weekOfISO,
	).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("get weekly plan: %w", err)
	}

	var p WeeklyPlan
	if err = json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal weekly plan doc: %w", err)
	}
	return &p, nil
}

func (r *Repo) Save(ctx context.Context, accountID string, plan WeeklyPlan) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "plansRepo.save")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err = plan.Validate(); err != nil {
		return err
	}

	doc, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("marshal weekly plan doc: %w", err)
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO weekly_plan (account_id, week_of, doc, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (account_id, week_of)
			DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		accountID, plan.WeekOfISO, doc,
	)
	if err != nil {
		return fmt.Errorf("save weekly plan: %w", err)
	}
	return nil
}

// ListWeeks returns the stored week start dates for an account, newest first.
func (r *Repo) ListWeeks(ctx context.Context, accountID string) (weeks []string, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "plansRepo.listWeeks")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`SELECT week_of FROM weekly_plan WHERE account_id = $1 ORDER BY week_of DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list weeks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var week string
		if err = rows.Scan(&week); err != nil {
			return nil, fmt.Errorf("scan week: %w", err)
		}
		weeks = append(weeks, week)
	}
	return weeks, rows.Err()
}

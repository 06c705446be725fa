package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

var ErrSessionNotFound = errors.New("session not found")

type ListParams struct {
	Page int
	Size int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, accountID string, session Session) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CompletedAt.IsZero() {
		session.CompletedAt = time.Now()
	}

	exercisesJson, err := json.Marshal(session.Exercises)
	if err != nil {
		return nil, fmt.Errorf("marshal exercises: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		`INSERT INTO session
				(id, account_id, date, session_name, session_types, exercises, completed_at, duration_sec, source_template_id, manual)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);`,
		session.ID, accountID, session.DateISO, session.SessionName, session.SessionTypes,
		exercisesJson, session.CompletedAt, session.DurationSec, session.SourceTemplateID, session.Manual,
	)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("session.id", session.ID))
	return &session, nil
}

// Update mutates a session in place. Only manual (placeholder) sessions are
// updated by the reconciler; real sessions are immutable once completed.
func (r *Repo) Update(ctx context.Context, accountID string, session Session) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", session.ID))

	exercisesJson, err := json.Marshal(session.Exercises)
	if err != nil {
		return fmt.Errorf("marshal exercises: %w", err)
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE session SET
				date = $1, session_name = $2, session_types = $3, exercises = $4,
				completed_at = $5, duration_sec = $6, manual = $7
			WHERE id = $8 AND account_id = $9;`,
		session.DateISO, session.SessionName, session.SessionTypes, exercisesJson,
		session.CompletedAt, session.DurationSec, session.Manual,
		session.ID, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *Repo) Get(ctx context.Context, accountID, id string) (_ *Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, to_char(date, 'YYYY-MM-DD'), session_name, session_types, exercises,
				completed_at, duration_sec, source_template_id, manual
			FROM session
			WHERE id = $1 AND account_id = $2;`,
		id, accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	sessions, err := r.rows2sessions(rows)
	if err != nil {
		return nil, err
	}
	if len(sessions) != 1 {
		return nil, ErrSessionNotFound
	}
	return &sessions[0], nil
}

func (r *Repo) Delete(ctx context.Context, accountID, id string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("session.id", id))

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM session WHERE id = $1 AND account_id = $2;`,
		id, accountID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListByDate returns all sessions logged for a single calendar day,
// oldest first. Used by the reconciler and the self-healing rebuild.
func (r *Repo) ListByDate(ctx context.Context, accountID, dateISO string) (_ []Session, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.listbydate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("date", dateISO))

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, to_char(date, 'YYYY-MM-DD'), session_name, session_types, exercises,
				completed_at, duration_sec, source_template_id, manual
			FROM session
			WHERE account_id = $1 AND date = $2
			ORDER BY completed_at ASC;`,
		accountID, dateISO,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return r.rows2sessions(rows)
}

// List returns the requested page of the session history, newest first.
func (r *Repo) List(ctx context.Context, accountID string, params ListParams) (_ []Session, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	countAll, err := r.Count(ctx, accountID)
	if err != nil {
		return nil, -1, err
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	if countAll <= limit {
		limit = countAll
		offset = 0
	}
	if countAll-offset < limit {
		offset = countAll - limit
	}

	rows, err := r.db.Query(
		ctx,
		`SELECT
				id, to_char(date, 'YYYY-MM-DD'), session_name, session_types, exercises,
				completed_at, duration_sec, source_template_id, manual
			FROM session
			WHERE account_id = $1
			ORDER BY completed_at DESC
			LIMIT $2
			OFFSET $3;`,
		accountID, limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	sessions, err := r.rows2sessions(rows)
	if err != nil {
		return nil, -1, err
	}
	return sessions, countAll, nil
}

func (r *Repo) Count(ctx context.Context, accountID string) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT COUNT(*) FROM session WHERE account_id = $1;`,
		accountID,
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return -1, err
	}

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err == nil {
			return count, nil
		}
	}

	return -1, errors.New("unexpected error, failed to get sessions count")
}

func (r *Repo) rows2sessions(rows pgx.Rows) ([]Session, error) {
	var sessions []Session
	for rows.Next() {
		var s Session
		var exercisesBytes []byte
		if err := rows.Scan(
			&s.ID, &s.DateISO, &s.SessionName, &s.SessionTypes, &exercisesBytes,
			&s.CompletedAt, &s.DurationSec, &s.SourceTemplateID, &s.Manual,
		); err != nil {
			return nil, err
		}

		if len(exercisesBytes) > 0 {
			if err := json.Unmarshal(exercisesBytes, &s.Exercises); err != nil {
				return nil, fmt.Errorf("unmarshal exercises for session %s: %w", s.ID, err)
			}
		}

		sessions = append(sessions, s)
	}

	if sessions == nil {
		sessions = make([]Session, 0)
	}

	return sessions, nil
}

package favorites

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fco71/myworkoutapp/internal/telemetry/tracing"
)

var ErrFavoriteNotFound = errors.New("favorite not found")

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Add(ctx context.Context, accountID string, f Favorite) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "favoritesRepo.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	if err = f.Validate(); err != nil {
		return err
	}

	// keep the optimistic cache entry's timestamp, it was stamped on toggle
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = r.db.Exec(ctx,
		`INSERT INTO favorite (account_id, item_type, item_id, created_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (account_id, item_type, item_id) DO NOTHING`,
		accountID, f.ItemType, f.ItemID, createdAt,
	)
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

func (r *Repo) Remove(ctx context.Context, accountID, itemType, itemID string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "favoritesRepo.remove")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tag, err := r.db.Exec(ctx,
		`DELETE FROM favorite WHERE account_id = $1 AND item_type = $2 AND item_id = $3`,
		accountID, itemType, itemID,
	)
	if err != nil {
		return fmt.Errorf("remove favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFavoriteNotFound
	}
	return nil
}

func (r *Repo) List(ctx context.Context, accountID string) (favorites []Favorite, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "favoritesRepo.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`SELECT item_type, item_id, created_at
			FROM favorite
			WHERE account_id = $1
			ORDER BY created_at ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var f Favorite
		if err = rows.Scan(&f.ItemType, &f.ItemID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

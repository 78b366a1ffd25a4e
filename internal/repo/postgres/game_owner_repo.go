package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrGameOwnerNotFound = errors.New("game owner not found")

type GameOwnerRepo struct {
	pool *pgxpool.Pool
}

type GameOwnerRecord struct {
	GameID             string
	OwnerAccountID     string
	PlatformFeePercent *float64
}

func NewGameOwnerRepo(pool *pgxpool.Pool) *GameOwnerRepo {
	return &GameOwnerRepo{pool: pool}
}

func (r *GameOwnerRepo) FindByGame(ctx context.Context, gameID string) (GameOwnerRecord, error) {
	if r.pool == nil {
		return GameOwnerRecord{}, fmt.Errorf("postgres pool is nil")
	}
	if strings.TrimSpace(gameID) == "" {
		return GameOwnerRecord{}, fmt.Errorf("invalid game id")
	}

	var rec GameOwnerRecord
	if err := r.pool.QueryRow(ctx, `
SELECT game_id, owner_account_id, platform_fee_percent
FROM game_owners
WHERE game_id = $1
LIMIT 1
`, gameID).Scan(&rec.GameID, &rec.OwnerAccountID, &rec.PlatformFeePercent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return GameOwnerRecord{}, ErrGameOwnerNotFound
		}
		return GameOwnerRecord{}, fmt.Errorf("find game owner: %w", err)
	}

	return rec, nil
}

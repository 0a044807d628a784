package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/game"
)

type RoundStore struct {
	db *sqlx.DB
}

func NewRoundStore(db *sqlx.DB) *RoundStore {
	return &RoundStore{db: db}
}

func (s *RoundStore) CreateRound(ctx context.Context, tx *sqlx.Tx, round *game.Round) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO rounds (id, competition_id, round_number, lock_time)
        VALUES (:id, :competition_id, :round_number, :lock_time)`, round)
	return err
}

func (s *RoundStore) GetRound(ctx context.Context, id uuid.UUID) (*game.Round, error) {
	var round game.Round
	err := s.db.GetContext(ctx, &round, "SELECT * FROM rounds WHERE id = ?", id)
	return &round, err
}

func (s *RoundStore) GetRoundTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*game.Round, error) {
	var round game.Round
	err := tx.GetContext(ctx, &round, "SELECT * FROM rounds WHERE id = ?", id)
	return &round, err
}

func (s *RoundStore) GetRoundByNumberTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID, roundNumber int) (*game.Round, error) {
	var round game.Round
	err := tx.GetContext(ctx, &round, "SELECT * FROM rounds WHERE competition_id = ? AND round_number = ?", competitionID, roundNumber)
	return &round, err
}

func (s *RoundStore) GetRounds(ctx context.Context, competitionID uuid.UUID) ([]game.Round, error) {
	var rounds []game.Round
	err := s.db.SelectContext(ctx, &rounds, "SELECT * FROM rounds WHERE competition_id = ? ORDER BY round_number ASC", competitionID)
	return rounds, err
}

func (s *RoundStore) CreateFixture(ctx context.Context, tx *sqlx.Tx, fixture *game.Fixture) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO fixtures (id, round_id, home_team, away_team, kickoff_time)
        VALUES (:id, :round_id, :home_team, :away_team, :kickoff_time)`, fixture)
	return err
}

func (s *RoundStore) GetFixtures(ctx context.Context, roundID uuid.UUID) ([]game.Fixture, error) {
	var fixtures []game.Fixture
	err := s.db.SelectContext(ctx, &fixtures, "SELECT * FROM fixtures WHERE round_id = ? ORDER BY kickoff_time ASC, home_team ASC", roundID)
	return fixtures, err
}

func (s *RoundStore) GetFixturesTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) ([]game.Fixture, error) {
	var fixtures []game.Fixture
	err := tx.SelectContext(ctx, &fixtures, "SELECT * FROM fixtures WHERE round_id = ? ORDER BY kickoff_time ASC, home_team ASC", roundID)
	return fixtures, err
}

func (s *RoundStore) GetFixture(ctx context.Context, id uuid.UUID) (*game.Fixture, error) {
	var fixture game.Fixture
	err := s.db.GetContext(ctx, &fixture, "SELECT * FROM fixtures WHERE id = ?", id)
	return &fixture, err
}

func (s *RoundStore) GetFixtureTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*game.Fixture, error) {
	var fixture game.Fixture
	err := tx.GetContext(ctx, &fixture, "SELECT * FROM fixtures WHERE id = ?", id)
	return &fixture, err
}

func (s *RoundStore) SetFixtureResultTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, result game.FixtureResult) error {
	_, err := tx.ExecContext(ctx, "UPDATE fixtures SET result = ? WHERE id = ?", result, id)
	return err
}

// ClaimRoundProcessedTx marks the round processed only if nothing else
// already did. The single row guarded by processed_at IS NULL closes the
// double-submission race.
func (s *RoundStore) ClaimRoundProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) (bool, error) {
	res, err := tx.ExecContext(ctx, "UPDATE rounds SET processed_at = ? WHERE id = ? AND processed_at IS NULL", at, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *RoundStore) MarkRoundProcessedTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx, "UPDATE rounds SET processed_at = ? WHERE id = ?", at, id)
	return err
}

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/mattn/go-sqlite3"
)

type PickStore struct {
	db *sqlx.DB
}

func NewPickStore(db *sqlx.DB) *PickStore {
	return &PickStore{db: db}
}

// CreatePickTx relies on the UNIQUE(round_id, user_id) constraint to
// close the double-submit race; a violation surfaces as
// PICK_ALREADY_EXISTS rather than a raw driver error.
func (s *PickStore) CreatePickTx(ctx context.Context, tx *sqlx.Tx, pick *game.Pick) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO picks (id, round_id, user_id, team, admin_set)
        VALUES (:id, :round_id, :user_id, :team, :admin_set)`, pick)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return game.NewError(game.ErrPickAlreadyExists, "a pick already exists for this round; remove it first")
	}
	return err
}

func (s *PickStore) GetPick(ctx context.Context, roundID, userID uuid.UUID) (*game.Pick, error) {
	var pick game.Pick
	err := s.db.GetContext(ctx, &pick, "SELECT * FROM picks WHERE round_id = ? AND user_id = ?", roundID, userID)
	return &pick, err
}

func (s *PickStore) GetPickTx(ctx context.Context, tx *sqlx.Tx, roundID, userID uuid.UUID) (*game.Pick, error) {
	var pick game.Pick
	err := tx.GetContext(ctx, &pick, "SELECT * FROM picks WHERE round_id = ? AND user_id = ?", roundID, userID)
	return &pick, err
}

func (s *PickStore) GetPicksByRound(ctx context.Context, roundID uuid.UUID) ([]game.Pick, error) {
	var picks []game.Pick
	err := s.db.SelectContext(ctx, &picks, "SELECT * FROM picks WHERE round_id = ?", roundID)
	return picks, err
}

func (s *PickStore) GetPicksByRoundTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) ([]game.Pick, error) {
	var picks []game.Pick
	err := tx.SelectContext(ctx, &picks, "SELECT * FROM picks WHERE round_id = ?", roundID)
	return picks, err
}

func (s *PickStore) DeletePickTx(ctx context.Context, tx *sqlx.Tx, roundID, userID uuid.UUID) (int64, error) {
	res, err := tx.ExecContext(ctx, "DELETE FROM picks WHERE round_id = ? AND user_id = ?", roundID, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const usedTeamsQuery = `
	SELECT DISTINCT p.team FROM picks p
	JOIN rounds r ON r.id = p.round_id
	WHERE r.competition_id = ? AND p.user_id = ? AND r.round_number < ?
	ORDER BY p.team ASC
`

// GetUsedTeams returns every team the player has picked in rounds before
// beforeRound, regardless of how those picks turned out.
func (s *PickStore) GetUsedTeams(ctx context.Context, competitionID, userID uuid.UUID, beforeRound int) ([]string, error) {
	var teams []string
	err := s.db.SelectContext(ctx, &teams, usedTeamsQuery, competitionID, userID, beforeRound)
	return teams, err
}

func (s *PickStore) GetUsedTeamsTx(ctx context.Context, tx *sqlx.Tx, competitionID, userID uuid.UUID, beforeRound int) ([]string, error) {
	var teams []string
	err := tx.SelectContext(ctx, &teams, usedTeamsQuery, competitionID, userID, beforeRound)
	return teams, err
}

func (s *PickStore) CreateProgressTx(ctx context.Context, tx *sqlx.Tx, rows []game.PlayerProgress) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO player_progress (id, round_id, user_id, chosen_team, outcome)
        VALUES (:id, :round_id, :user_id, :chosen_team, :outcome)`, rows)
	return err
}

func (s *PickStore) GetProgressByRound(ctx context.Context, roundID uuid.UUID) ([]game.PlayerProgress, error) {
	var rows []game.PlayerProgress
	err := s.db.SelectContext(ctx, &rows, "SELECT * FROM player_progress WHERE round_id = ?", roundID)
	return rows, err
}

func (s *PickStore) GetProgressByRoundTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) ([]game.PlayerProgress, error) {
	var rows []game.PlayerProgress
	err := tx.SelectContext(ctx, &rows, "SELECT * FROM player_progress WHERE round_id = ?", roundID)
	return rows, err
}

func (s *PickStore) DeleteProgressByRoundTx(ctx context.Context, tx *sqlx.Tx, roundID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, "DELETE FROM player_progress WHERE round_id = ?", roundID)
	return err
}

// GetProgressByUser returns a player's full round-by-round history in one
// competition, oldest first. This is what the notification layer consumes.
func (s *PickStore) GetProgressByUser(ctx context.Context, competitionID, userID uuid.UUID) ([]game.PlayerProgress, error) {
	var rows []game.PlayerProgress
	err := s.db.SelectContext(ctx, &rows, `
		SELECT pp.* FROM player_progress pp
		JOIN rounds r ON r.id = pp.round_id
		WHERE r.competition_id = ? AND pp.user_id = ?
		ORDER BY r.round_number ASC`, competitionID, userID)
	return rows, err
}

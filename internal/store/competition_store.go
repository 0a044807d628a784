package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/game"
)

type CompetitionStore struct {
	db *sqlx.DB
}

func NewCompetitionStore(db *sqlx.DB) *CompetitionStore {
	return &CompetitionStore{db: db}
}

func (s *CompetitionStore) CreateCompetition(ctx context.Context, tx *sqlx.Tx, competition *game.Competition) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO competitions (id, organizer_id, name, status, lives_per_player, no_team_twice, max_lives, current_round_number)
        VALUES (:id, :organizer_id, :name, :status, :lives_per_player, :no_team_twice, :max_lives, :current_round_number)`, competition)
	return err
}

func (s *CompetitionStore) CreateTeams(ctx context.Context, tx *sqlx.Tx, teams []game.Team) error {
	if len(teams) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx, `INSERT INTO teams (id, competition_id, short_name, full_name)
            VALUES (:id, :competition_id, :short_name, :full_name)`, teams)
	return err
}

func (s *CompetitionStore) GetCompetition(ctx context.Context, id uuid.UUID) (*game.Competition, error) {
	var competition game.Competition
	err := s.db.GetContext(ctx, &competition, "SELECT * FROM competitions WHERE id = ?", id)
	return &competition, err
}

func (s *CompetitionStore) GetCompetitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*game.Competition, error) {
	var competition game.Competition
	err := tx.GetContext(ctx, &competition, "SELECT * FROM competitions WHERE id = ?", id)
	return &competition, err
}

func (s *CompetitionStore) GetCompetitionsByOrganizer(ctx context.Context, organizerID uuid.UUID) ([]game.Competition, error) {
	var competitions []game.Competition
	err := s.db.SelectContext(ctx, &competitions, "SELECT * FROM competitions WHERE organizer_id = ? ORDER BY created_at DESC", organizerID)
	return competitions, err
}

func (s *CompetitionStore) GetTeams(ctx context.Context, competitionID uuid.UUID) ([]game.Team, error) {
	var teams []game.Team
	err := s.db.SelectContext(ctx, &teams, "SELECT * FROM teams WHERE competition_id = ? ORDER BY short_name ASC", competitionID)
	return teams, err
}

func (s *CompetitionStore) GetTeamsTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID) ([]game.Team, error) {
	var teams []game.Team
	err := tx.SelectContext(ctx, &teams, "SELECT * FROM teams WHERE competition_id = ? ORDER BY short_name ASC", competitionID)
	return teams, err
}

func (s *CompetitionStore) UpdateCompetitionStateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status game.CompetitionStatus, winnerID *uuid.UUID) error {
	_, err := tx.ExecContext(ctx, "UPDATE competitions SET status = ?, winner_id = ? WHERE id = ?", status, winnerID, id)
	return err
}

func (s *CompetitionStore) SetCurrentRoundTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, roundNumber int) error {
	_, err := tx.ExecContext(ctx, "UPDATE competitions SET current_round_number = ? WHERE id = ?", roundNumber, id)
	return err
}

func (s *CompetitionStore) AddCompetitionUser(ctx context.Context, tx *sqlx.Tx, cu *game.CompetitionUser) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO competition_users (competition_id, user_id, status, lives_remaining, paid, hidden, manage_results, manage_players, manage_fixtures)
        VALUES (:competition_id, :user_id, :status, :lives_remaining, :paid, :hidden, :manage_results, :manage_players, :manage_fixtures)`, cu)
	return err
}

func (s *CompetitionStore) GetCompetitionUser(ctx context.Context, competitionID, userID uuid.UUID) (*game.CompetitionUser, error) {
	var cu game.CompetitionUser
	err := s.db.GetContext(ctx, &cu, "SELECT * FROM competition_users WHERE competition_id = ? AND user_id = ?", competitionID, userID)
	return &cu, err
}

func (s *CompetitionStore) GetCompetitionUserTx(ctx context.Context, tx *sqlx.Tx, competitionID, userID uuid.UUID) (*game.CompetitionUser, error) {
	var cu game.CompetitionUser
	err := tx.GetContext(ctx, &cu, "SELECT * FROM competition_users WHERE competition_id = ? AND user_id = ?", competitionID, userID)
	return &cu, err
}

func (s *CompetitionStore) GetCompetitionUsers(ctx context.Context, competitionID uuid.UUID) ([]game.CompetitionUser, error) {
	var players []game.CompetitionUser
	err := s.db.SelectContext(ctx, &players, "SELECT * FROM competition_users WHERE competition_id = ? ORDER BY joined_at ASC", competitionID)
	return players, err
}

func (s *CompetitionStore) GetActiveCompetitionUsersTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID) ([]game.CompetitionUser, error) {
	var players []game.CompetitionUser
	err := tx.SelectContext(ctx, &players, "SELECT * FROM competition_users WHERE competition_id = ? AND status = ? ORDER BY joined_at ASC", competitionID, game.PlayerActive)
	return players, err
}

func (s *CompetitionStore) CountActivePlayersTx(ctx context.Context, tx *sqlx.Tx, competitionID uuid.UUID) (int, error) {
	var count int
	err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM competition_users WHERE competition_id = ? AND status = ?", competitionID, game.PlayerActive)
	return count, err
}

func (s *CompetitionStore) UpdateCompetitionUserTx(ctx context.Context, tx *sqlx.Tx, cu *game.CompetitionUser) error {
	_, err := tx.NamedExecContext(ctx, `UPDATE competition_users SET
		status = :status,
		lives_remaining = :lives_remaining
		WHERE competition_id = :competition_id AND user_id = :user_id`, cu)
	return err
}

func (s *CompetitionStore) CreateAuditEntryTx(ctx context.Context, tx *sqlx.Tx, entry *game.AuditEntry) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO audit_log (id, competition_id, user_id, actor_id, action, old_value, new_value, reason)
        VALUES (:id, :competition_id, :user_id, :actor_id, :action, :old_value, :new_value, :reason)`, entry)
	return err
}

func (s *CompetitionStore) GetAuditEntries(ctx context.Context, competitionID uuid.UUID) ([]game.AuditEntry, error) {
	var entries []game.AuditEntry
	err := s.db.SelectContext(ctx, &entries, "SELECT * FROM audit_log WHERE competition_id = ? ORDER BY created_at ASC", competitionID)
	return entries, err
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/cache"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/lmslocal/lmslocal/internal/store"
	"github.com/lmslocal/lmslocal/internal/utils"
)

type AdminService struct {
	db           *sqlx.DB
	competitions *store.CompetitionStore
	rounds       *store.RoundStore
	picks        *store.PickStore
	allowedCache cache.Store
}

func NewAdminService(db *sqlx.DB, competitions *store.CompetitionStore, rounds *store.RoundStore, picks *store.PickStore, allowedCache cache.Store) *AdminService {
	return &AdminService{db: db, competitions: competitions, rounds: rounds, picks: picks, allowedCache: allowedCache}
}

// authorize admits the organizer or anyone holding one of the required
// delegated capabilities.
func authorize(competition *game.Competition, actorID uuid.UUID, caps game.CapabilitySet, required ...game.Capability) error {
	if actorID == competition.OrganizerID {
		return nil
	}
	for _, c := range required {
		if caps.Has(c) {
			return nil
		}
	}
	return game.NewError(game.ErrForbidden, "organizer or delegated capability required")
}

type AdminPickResult struct {
	Pick    *game.Pick
	Removed bool
}

type LivesOperation string

const (
	LivesAdd      LivesOperation = "add"
	LivesSubtract LivesOperation = "subtract"
	LivesSet      LivesOperation = "set"
)

type LivesChange struct {
	OldLives int
	NewLives int
}

// AdminSetPick sets or clears a player's pick in the current round on
// the organizer's authority. The round lock does not apply, but team
// legality still does; an empty team means "remove the pick". Picks
// written here carry the admin_set flag and an audit row.
func (s *AdminService) AdminSetPick(ctx context.Context, competitionID, actorID uuid.UUID, caps game.CapabilitySet, userID uuid.UUID, team string) (*AdminPickResult, error) {
	team = strings.TrimSpace(team)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "competition not found")
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManageResults, game.CapManagePlayers); err != nil {
		return nil, err
	}
	if competition.CurrentRoundNumber == 0 {
		return nil, game.NewError(game.ErrNotFound, "no round is open")
	}

	round, err := s.rounds.GetRoundByNumberTx(ctx, tx, competitionID, competition.CurrentRoundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}

	if _, err := s.competitions.GetCompetitionUserTx(ctx, tx, competitionID, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrPlayerNotInCompetition, "player is not in this competition")
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	var oldTeam *string
	if existing, err := s.picks.GetPickTx(ctx, tx, round.ID, userID); err == nil {
		oldTeam = utils.Ptr(existing.Team)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to get existing pick: %w", err)
	}

	if team == "" {
		removed, err := s.picks.DeletePickTx(ctx, tx, round.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to delete pick: %w", err)
		}
		if err := s.competitions.CreateAuditEntryTx(ctx, tx, &game.AuditEntry{
			ID:            uuid.New(),
			CompetitionID: competitionID,
			UserID:        userID,
			ActorID:       actorID,
			Action:        "admin_clear_pick",
			OldValue:      oldTeam,
		}); err != nil {
			return nil, fmt.Errorf("failed to write audit entry: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		s.allowedCache.Invalidate(competitionID, userID)
		return &AdminPickResult{Removed: removed > 0}, nil
	}

	if err := verifyTeamInFixturesTx(ctx, tx, s.rounds, round.ID, team); err != nil {
		return nil, err
	}
	allowed, _, err := allowedTeamsTx(ctx, tx, s.competitions, s.picks, competition, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := allowed[team]; !ok {
		return nil, game.NewError(game.ErrTeamNotAllowed, "team has already been used")
	}

	if _, err := s.picks.DeletePickTx(ctx, tx, round.ID, userID); err != nil {
		return nil, fmt.Errorf("failed to replace pick: %w", err)
	}
	pick := &game.Pick{
		ID:       uuid.New(),
		RoundID:  round.ID,
		UserID:   userID,
		Team:     team,
		AdminSet: true,
	}
	if err := s.picks.CreatePickTx(ctx, tx, pick); err != nil {
		return nil, err
	}

	if err := s.competitions.CreateAuditEntryTx(ctx, tx, &game.AuditEntry{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		UserID:        userID,
		ActorID:       actorID,
		Action:        "admin_set_pick",
		OldValue:      oldTeam,
		NewValue:      utils.Ptr(team),
	}); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.allowedCache.Invalidate(competitionID, userID)

	return &AdminPickResult{Pick: pick}, nil
}

// UpdatePlayerLives mutates a player's lives directly, clamped to
// [0, max_lives]. The old and new values plus the reason go to the
// audit log.
func (s *AdminService) UpdatePlayerLives(ctx context.Context, competitionID, actorID uuid.UUID, caps game.CapabilitySet, playerID uuid.UUID, op LivesOperation, amount int, reason string) (*LivesChange, error) {
	if amount < 0 {
		return nil, game.NewError(game.ErrInvalidInput, "amount cannot be negative")
	}
	if strings.TrimSpace(reason) == "" {
		return nil, game.NewError(game.ErrInvalidInput, "a reason is required")
	}
	switch op {
	case LivesAdd, LivesSubtract, LivesSet:
	default:
		return nil, game.NewError(game.ErrInvalidInput, "invalid lives operation")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "competition not found")
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManagePlayers); err != nil {
		return nil, err
	}

	player, err := s.competitions.GetCompetitionUserTx(ctx, tx, competitionID, playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrPlayerNotInCompetition, "player is not in this competition")
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}

	oldLives := player.LivesRemaining
	newLives := oldLives
	switch op {
	case LivesAdd:
		newLives += amount
	case LivesSubtract:
		newLives -= amount
	case LivesSet:
		newLives = amount
	}
	if newLives < 0 {
		newLives = 0
	}
	if newLives > competition.MaxLives {
		newLives = competition.MaxLives
	}

	player.LivesRemaining = newLives
	if err := s.competitions.UpdateCompetitionUserTx(ctx, tx, player); err != nil {
		return nil, fmt.Errorf("failed to update player: %w", err)
	}

	if err := s.competitions.CreateAuditEntryTx(ctx, tx, &game.AuditEntry{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		UserID:        playerID,
		ActorID:       actorID,
		Action:        "admin_update_lives",
		OldValue:      utils.Ptr(fmt.Sprintf("%d", oldLives)),
		NewValue:      utils.Ptr(fmt.Sprintf("%d", newLives)),
		Reason:        utils.Ptr(reason),
	}); err != nil {
		return nil, fmt.Errorf("failed to write audit entry: %w", err)
	}

	return &LivesChange{OldLives: oldLives, NewLives: newLives}, tx.Commit()
}

// UpdatePlayerStatus disqualifies or reinstates a player directly. The
// override stands until the next automatic processing run recomputes
// the player's state.
func (s *AdminService) UpdatePlayerStatus(ctx context.Context, competitionID, actorID uuid.UUID, caps game.CapabilitySet, playerID uuid.UUID, status game.PlayerStatus, reason string) error {
	switch status {
	case game.PlayerActive, game.PlayerOut:
	default:
		return game.NewError(game.ErrInvalidInput, "invalid status")
	}
	if strings.TrimSpace(reason) == "" {
		return game.NewError(game.ErrInvalidInput, "a reason is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.NewError(game.ErrNotFound, "competition not found")
		}
		return fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManagePlayers); err != nil {
		return err
	}

	player, err := s.competitions.GetCompetitionUserTx(ctx, tx, competitionID, playerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.NewError(game.ErrPlayerNotInCompetition, "player is not in this competition")
		}
		return fmt.Errorf("failed to get player: %w", err)
	}

	oldStatus := player.Status
	player.Status = status
	if err := s.competitions.UpdateCompetitionUserTx(ctx, tx, player); err != nil {
		return fmt.Errorf("failed to update player: %w", err)
	}

	if err := s.competitions.CreateAuditEntryTx(ctx, tx, &game.AuditEntry{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		UserID:        playerID,
		ActorID:       actorID,
		Action:        "admin_update_status",
		OldValue:      utils.Ptr(string(oldStatus)),
		NewValue:      utils.Ptr(string(status)),
		Reason:        utils.Ptr(reason),
	}); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return tx.Commit()
}

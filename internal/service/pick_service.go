package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/cache"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/lmslocal/lmslocal/internal/store"
)

type PickService struct {
	db           *sqlx.DB
	competitions *store.CompetitionStore
	rounds       *store.RoundStore
	picks        *store.PickStore
	allowedCache cache.Store
}

func NewPickService(db *sqlx.DB, competitions *store.CompetitionStore, rounds *store.RoundStore, picks *store.PickStore, allowedCache cache.Store) *PickService {
	return &PickService{db: db, competitions: competitions, rounds: rounds, picks: picks, allowedCache: allowedCache}
}

type AllowedTeamsResult struct {
	Teams    []game.Team
	WasReset bool
}

type UnselectResult struct {
	// Removed is false when there was no pick to remove. That case is a
	// warning for the caller, not an error.
	Removed bool
}

// GetAllowedTeams computes the set of teams a player may still pick in
// the competition's current round. Under no-team-twice the set is the
// team list minus everything the player has picked before; if that
// subtraction empties the set the rule resets and the full list comes
// back with WasReset set.
func (s *PickService) GetAllowedTeams(ctx context.Context, competitionID, userID uuid.UUID) (*AllowedTeamsResult, error) {
	competition, err := s.competitions.GetCompetition(ctx, competitionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "competition not found")
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if competition.Status != game.CompetitionActive {
		return nil, game.NewError(game.ErrCompetitionNotActive, "competition is not active")
	}

	cu, err := s.competitions.GetCompetitionUser(ctx, competitionID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrPlayerNotInCompetition, "player is not in this competition")
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if cu.Status != game.PlayerActive {
		return nil, game.NewError(game.ErrPlayerEliminated, "player has been eliminated")
	}

	teams, err := s.competitions.GetTeams(ctx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team list: %w", err)
	}

	if entry, ok := s.allowedCache.Get(competitionID, userID); ok {
		return &AllowedTeamsResult{Teams: filterTeams(teams, entry.Teams), WasReset: entry.WasReset}, nil
	}

	var allowedNames []string
	var wasReset bool
	if !competition.NoTeamTwice {
		allowedNames = teamShortNames(teams)
	} else {
		used, err := s.picks.GetUsedTeams(ctx, competitionID, userID, competition.CurrentRoundNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to get used teams: %w", err)
		}
		allowedNames = subtractTeams(teams, used)
		if len(allowedNames) == 0 {
			// Every team has been used; the rule resets.
			allowedNames = teamShortNames(teams)
			wasReset = true
		}
	}

	s.allowedCache.Set(competitionID, userID, cache.AllowedTeamsEntry{Teams: allowedNames, WasReset: wasReset})

	return &AllowedTeamsResult{Teams: filterTeams(teams, allowedNames), WasReset: wasReset}, nil
}

// SetPick records a player's team choice for a round. Lock status and
// team legality are verified inside the same transaction as the insert;
// the (round_id, user_id) uniqueness is enforced by the storage layer.
func (s *PickService) SetPick(ctx context.Context, userID, roundID uuid.UUID, team string) (*game.Pick, error) {
	team = strings.TrimSpace(team)
	if team == "" {
		return nil, game.NewError(game.ErrInvalidInput, "team is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	round, err := s.rounds.GetRoundTx(ctx, tx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "round not found")
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	fixtures, err := s.rounds.GetFixturesTx(ctx, tx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fixtures: %w", err)
	}
	if game.PicksClosed(round, fixtures, time.Now()) {
		return nil, game.NewError(game.ErrRoundLocked, "picks are locked for this round")
	}

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, round.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if competition.Status != game.CompetitionActive {
		return nil, game.NewError(game.ErrCompetitionNotActive, "competition is not active")
	}

	cu, err := s.competitions.GetCompetitionUserTx(ctx, tx, competition.ID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrPlayerNotInCompetition, "player is not in this competition")
		}
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if cu.Status != game.PlayerActive {
		return nil, game.NewError(game.ErrPlayerEliminated, "player has been eliminated")
	}

	if !fixturesInvolve(fixtures, team) {
		return nil, game.NewError(game.ErrTeamNotInFixtures, "team does not play in this round")
	}

	allowed, _, err := allowedTeamsTx(ctx, tx, s.competitions, s.picks, competition, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := allowed[team]; !ok {
		return nil, game.NewError(game.ErrTeamNotAllowed, "team has already been used")
	}

	pick := &game.Pick{
		ID:      uuid.New(),
		RoundID: roundID,
		UserID:  userID,
		Team:    team,
	}
	if err := s.picks.CreatePickTx(ctx, tx, pick); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.allowedCache.Invalidate(competition.ID, userID)

	return pick, nil
}

// UnselectPick removes a player's pick for an unlocked round. A missing
// pick is a no-op.
func (s *PickService) UnselectPick(ctx context.Context, userID, roundID uuid.UUID) (*UnselectResult, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	round, err := s.rounds.GetRoundTx(ctx, tx, roundID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "round not found")
		}
		return nil, fmt.Errorf("failed to get round: %w", err)
	}
	fixtures, err := s.rounds.GetFixturesTx(ctx, tx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fixtures: %w", err)
	}
	if game.PicksClosed(round, fixtures, time.Now()) {
		return nil, game.NewError(game.ErrRoundLocked, "picks are locked for this round")
	}

	removed, err := s.picks.DeletePickTx(ctx, tx, roundID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete pick: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	if removed > 0 {
		s.allowedCache.Invalidate(round.CompetitionID, userID)
	}

	return &UnselectResult{Removed: removed > 0}, nil
}

func fixturesInvolve(fixtures []game.Fixture, team string) bool {
	for i := range fixtures {
		if fixtures[i].Involves(team) {
			return true
		}
	}
	return false
}

func verifyTeamInFixturesTx(ctx context.Context, tx *sqlx.Tx, rounds *store.RoundStore, roundID uuid.UUID, team string) error {
	fixtures, err := rounds.GetFixturesTx(ctx, tx, roundID)
	if err != nil {
		return fmt.Errorf("failed to get fixtures: %w", err)
	}
	if !fixturesInvolve(fixtures, team) {
		return game.NewError(game.ErrTeamNotInFixtures, "team does not play in this round")
	}
	return nil
}

// allowedTeamsTx re-derives the allowed set inside a write transaction.
// Write paths never trust the cache.
func allowedTeamsTx(ctx context.Context, tx *sqlx.Tx, competitions *store.CompetitionStore, picks *store.PickStore, competition *game.Competition, userID uuid.UUID) (map[string]struct{}, bool, error) {
	teams, err := competitions.GetTeamsTx(ctx, tx, competition.ID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get team list: %w", err)
	}

	allowed := make(map[string]struct{}, len(teams))
	for i := range teams {
		allowed[teams[i].ShortName] = struct{}{}
	}
	if !competition.NoTeamTwice {
		return allowed, false, nil
	}

	used, err := picks.GetUsedTeamsTx(ctx, tx, competition.ID, userID, competition.CurrentRoundNumber)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get used teams: %w", err)
	}
	for _, name := range used {
		delete(allowed, name)
	}
	if len(allowed) > 0 {
		return allowed, false, nil
	}

	// Exhausted every team: reset to the full list.
	for i := range teams {
		allowed[teams[i].ShortName] = struct{}{}
	}
	return allowed, true, nil
}

func teamShortNames(teams []game.Team) []string {
	names := make([]string, 0, len(teams))
	for i := range teams {
		names = append(names, teams[i].ShortName)
	}
	return names
}

func subtractTeams(teams []game.Team, used []string) []string {
	usedSet := make(map[string]struct{}, len(used))
	for _, name := range used {
		usedSet[name] = struct{}{}
	}
	var names []string
	for i := range teams {
		if _, ok := usedSet[teams[i].ShortName]; !ok {
			names = append(names, teams[i].ShortName)
		}
	}
	return names
}

func filterTeams(teams []game.Team, names []string) []game.Team {
	nameSet := make(map[string]struct{}, len(names))
	for _, name := range names {
		nameSet[name] = struct{}{}
	}
	filtered := make([]game.Team, 0, len(names))
	for i := range teams {
		if _, ok := nameSet[teams[i].ShortName]; ok {
			filtered = append(filtered, teams[i])
		}
	}
	return filtered
}

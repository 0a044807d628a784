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

// Lives beyond this need an explicit bump at creation time; admin lives
// edits clamp to the competition's max_lives.
const defaultMaxLives = 2

type CompetitionService struct {
	db           *sqlx.DB
	competitions *store.CompetitionStore
	rounds       *store.RoundStore
	allowedCache cache.Store
}

func NewCompetitionService(db *sqlx.DB, competitions *store.CompetitionStore, rounds *store.RoundStore, allowedCache cache.Store) *CompetitionService {
	return &CompetitionService{db: db, competitions: competitions, rounds: rounds, allowedCache: allowedCache}
}

type TeamInput struct {
	ShortName string
	FullName  string
}

type CompetitionState struct {
	Status   game.CompetitionStatus
	WinnerID *uuid.UUID
	IsDraw   bool
}

func (s *CompetitionService) CreateCompetition(ctx context.Context, organizerID uuid.UUID, name string, livesPerPlayer int, noTeamTwice bool, teams []TeamInput) (uuid.UUID, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return uuid.Nil, game.NewError(game.ErrInvalidInput, "competition name is required")
	}
	if livesPerPlayer < 0 {
		return uuid.Nil, game.NewError(game.ErrInvalidInput, "lives per player cannot be negative")
	}
	if len(teams) < 2 {
		return uuid.Nil, game.NewError(game.ErrInvalidInput, "a competition needs at least two teams")
	}
	seen := make(map[string]struct{}, len(teams))
	for _, t := range teams {
		short := strings.TrimSpace(t.ShortName)
		if short == "" {
			return uuid.Nil, game.NewError(game.ErrInvalidInput, "team short name is required")
		}
		if _, ok := seen[short]; ok {
			return uuid.Nil, game.NewError(game.ErrInvalidInput, "duplicate team: "+short)
		}
		seen[short] = struct{}{}
	}

	maxLives := defaultMaxLives
	if livesPerPlayer > maxLives {
		maxLives = livesPerPlayer
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return uuid.Nil, err
	}
	defer tx.Rollback()

	competitionID := uuid.New()
	competition := &game.Competition{
		ID:             competitionID,
		OrganizerID:    organizerID,
		Name:           name,
		Status:         game.CompetitionSetup,
		LivesPerPlayer: livesPerPlayer,
		NoTeamTwice:    noTeamTwice,
		MaxLives:       maxLives,
	}
	if err := s.competitions.CreateCompetition(ctx, tx, competition); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create competition: %w", err)
	}

	rows := make([]game.Team, 0, len(teams))
	for _, t := range teams {
		rows = append(rows, game.Team{
			ID:            uuid.New(),
			CompetitionID: competitionID,
			ShortName:     strings.TrimSpace(t.ShortName),
			FullName:      strings.TrimSpace(t.FullName),
		})
	}
	if err := s.competitions.CreateTeams(ctx, tx, rows); err != nil {
		return uuid.Nil, fmt.Errorf("failed to create teams: %w", err)
	}

	return competitionID, tx.Commit()
}

func (s *CompetitionService) StartCompetition(ctx context.Context, competitionID, actorID uuid.UUID) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	competition, err := s.getCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		return err
	}
	if actorID != competition.OrganizerID {
		return game.NewError(game.ErrForbidden, "only the organizer can start a competition")
	}
	if competition.Status != game.CompetitionSetup {
		return game.NewError(game.ErrCompetitionNotActive, "competition has already started")
	}

	if err := s.competitions.UpdateCompetitionStateTx(ctx, tx, competitionID, game.CompetitionActive, nil); err != nil {
		return fmt.Errorf("failed to start competition: %w", err)
	}
	return tx.Commit()
}

func (s *CompetitionService) JoinCompetition(ctx context.Context, competitionID, userID uuid.UUID) (*game.CompetitionUser, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.getCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		return nil, err
	}
	if competition.Status == game.CompetitionComplete {
		return nil, game.NewError(game.ErrCompetitionNotActive, "competition has finished")
	}

	if _, err := s.competitions.GetCompetitionUserTx(ctx, tx, competitionID, userID); err == nil {
		return nil, game.NewError(game.ErrInvalidInput, "player has already joined")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}

	cu := &game.CompetitionUser{
		CompetitionID:  competitionID,
		UserID:         userID,
		Status:         game.PlayerActive,
		LivesRemaining: competition.LivesPerPlayer,
	}
	if err := s.competitions.AddCompetitionUser(ctx, tx, cu); err != nil {
		return nil, fmt.Errorf("failed to add player: %w", err)
	}
	return cu, tx.Commit()
}

// CreateRound opens the next round. The previous round must be fully
// processed first so results can never interleave across rounds.
func (s *CompetitionService) CreateRound(ctx context.Context, competitionID, actorID uuid.UUID, caps game.CapabilitySet, lockTime time.Time) (*game.Round, error) {
	if lockTime.IsZero() {
		return nil, game.NewError(game.ErrInvalidInput, "lock time is required")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.getCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		return nil, err
	}
	if err := authorize(competition, actorID, caps, game.CapManageFixtures); err != nil {
		return nil, err
	}
	if competition.Status != game.CompetitionActive {
		return nil, game.NewError(game.ErrCompetitionNotActive, "competition is not active")
	}

	if competition.CurrentRoundNumber > 0 {
		current, err := s.rounds.GetRoundByNumberTx(ctx, tx, competitionID, competition.CurrentRoundNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to get current round: %w", err)
		}
		if !current.Processed() {
			return nil, game.NewError(game.ErrNotProcessed, "current round has not been processed")
		}
	}

	round := &game.Round{
		ID:            uuid.New(),
		CompetitionID: competitionID,
		RoundNumber:   competition.CurrentRoundNumber + 1,
		LockTime:      lockTime.UTC(),
	}
	if err := s.rounds.CreateRound(ctx, tx, round); err != nil {
		return nil, fmt.Errorf("failed to create round: %w", err)
	}
	if err := s.competitions.SetCurrentRoundTx(ctx, tx, competitionID, round.RoundNumber); err != nil {
		return nil, fmt.Errorf("failed to advance round number: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	// Advancing current_round_number moves the used-teams cutoff, so any
	// allowed-teams entry cached against the old round is now stale.
	s.allowedCache.InvalidateCompetition(competitionID)

	return round, nil
}

func (s *CompetitionService) AddFixture(ctx context.Context, roundID, actorID uuid.UUID, caps game.CapabilitySet, homeTeam, awayTeam string, kickoff time.Time) (*game.Fixture, error) {
	homeTeam = strings.TrimSpace(homeTeam)
	awayTeam = strings.TrimSpace(awayTeam)
	if homeTeam == "" || awayTeam == "" {
		return nil, game.NewError(game.ErrInvalidInput, "home and away teams are required")
	}
	if homeTeam == awayTeam {
		return nil, game.NewError(game.ErrInvalidInput, "a team cannot play itself")
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
	if round.Processed() {
		return nil, game.NewError(game.ErrAlreadyProcessed, "round has already been processed")
	}

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, round.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManageFixtures); err != nil {
		return nil, err
	}

	teams, err := s.competitions.GetTeamsTx(ctx, tx, competition.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get team list: %w", err)
	}
	known := make(map[string]struct{}, len(teams))
	for i := range teams {
		known[teams[i].ShortName] = struct{}{}
	}
	for _, name := range []string{homeTeam, awayTeam} {
		if _, ok := known[name]; !ok {
			return nil, game.NewError(game.ErrInvalidInput, "unknown team: "+name)
		}
	}

	// One fixture per team per round, otherwise a pick could both win
	// and lose.
	existing, err := s.rounds.GetFixturesTx(ctx, tx, roundID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fixtures: %w", err)
	}
	for i := range existing {
		if existing[i].Involves(homeTeam) || existing[i].Involves(awayTeam) {
			return nil, game.NewError(game.ErrInvalidInput, "team already has a fixture in this round")
		}
	}

	fixture := &game.Fixture{
		ID:          uuid.New(),
		RoundID:     roundID,
		HomeTeam:    homeTeam,
		AwayTeam:    awayTeam,
		KickoffTime: kickoff.UTC(),
	}
	if err := s.rounds.CreateFixture(ctx, tx, fixture); err != nil {
		return nil, fmt.Errorf("failed to create fixture: %w", err)
	}

	return fixture, tx.Commit()
}

// SetFixtureResult records or corrects a fixture result. Corrections on
// an already-processed round are allowed; the round must then go through
// the reprocess path.
func (s *CompetitionService) SetFixtureResult(ctx context.Context, fixtureID, actorID uuid.UUID, caps game.CapabilitySet, result game.FixtureResult) error {
	switch result {
	case game.HomeWin, game.AwayWin, game.Draw:
	default:
		return game.NewError(game.ErrInvalidInput, "invalid result")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	fixture, err := s.rounds.GetFixtureTx(ctx, tx, fixtureID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return game.NewError(game.ErrNotFound, "fixture not found")
		}
		return fmt.Errorf("failed to get fixture: %w", err)
	}

	round, err := s.rounds.GetRoundTx(ctx, tx, fixture.RoundID)
	if err != nil {
		return fmt.Errorf("failed to get round: %w", err)
	}
	competition, err := s.competitions.GetCompetitionTx(ctx, tx, round.CompetitionID)
	if err != nil {
		return fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManageResults); err != nil {
		return err
	}

	if err := s.rounds.SetFixtureResultTx(ctx, tx, fixtureID, result); err != nil {
		return fmt.Errorf("failed to set result: %w", err)
	}
	return tx.Commit()
}

// EvaluateCompetitionState decides whether the competition continues,
// ends with a winner, or ends in a draw. Valid only once the current
// round has been fully processed.
func (s *CompetitionService) EvaluateCompetitionState(ctx context.Context, competitionID uuid.UUID) (*CompetitionState, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	competition, err := s.getCompetitionTx(ctx, tx, competitionID)
	if err != nil {
		return nil, err
	}

	if competition.Status == game.CompetitionComplete {
		return &CompetitionState{
			Status:   game.CompetitionComplete,
			WinnerID: competition.WinnerID,
			IsDraw:   competition.WinnerID == nil,
		}, nil
	}
	if competition.Status != game.CompetitionActive {
		return nil, game.NewError(game.ErrCompetitionNotActive, "competition is not active")
	}
	if competition.CurrentRoundNumber == 0 {
		return &CompetitionState{Status: game.CompetitionActive}, nil
	}

	current, err := s.rounds.GetRoundByNumberTx(ctx, tx, competitionID, competition.CurrentRoundNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to get current round: %w", err)
	}
	if !current.Processed() {
		return nil, game.NewError(game.ErrNotProcessed, "current round has not been processed")
	}

	count, err := s.competitions.CountActivePlayersTx(ctx, tx, competitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active players: %w", err)
	}

	state := &CompetitionState{Status: game.CompetitionActive}
	switch count {
	case 0:
		// Everyone is out: nobody wins.
		state.Status = game.CompetitionComplete
		state.IsDraw = true
		if err := s.competitions.UpdateCompetitionStateTx(ctx, tx, competitionID, game.CompetitionComplete, nil); err != nil {
			return nil, fmt.Errorf("failed to complete competition: %w", err)
		}
	case 1:
		active, err := s.competitions.GetActiveCompetitionUsersTx(ctx, tx, competitionID)
		if err != nil {
			return nil, fmt.Errorf("failed to get active players: %w", err)
		}
		winnerID := active[0].UserID
		state.Status = game.CompetitionComplete
		state.WinnerID = &winnerID
		if err := s.competitions.UpdateCompetitionStateTx(ctx, tx, competitionID, game.CompetitionComplete, &winnerID); err != nil {
			return nil, fmt.Errorf("failed to complete competition: %w", err)
		}
	}

	return state, tx.Commit()
}

func (s *CompetitionService) getCompetitionTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*game.Competition, error) {
	competition, err := s.competitions.GetCompetitionTx(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, game.NewError(game.ErrNotFound, "competition not found")
		}
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	return competition, nil
}

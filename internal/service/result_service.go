package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/cache"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/lmslocal/lmslocal/internal/store"
)

type ResultService struct {
	db           *sqlx.DB
	competitions *store.CompetitionStore
	rounds       *store.RoundStore
	picks        *store.PickStore
	allowedCache cache.Store
}

func NewResultService(db *sqlx.DB, competitions *store.CompetitionStore, rounds *store.RoundStore, picks *store.PickStore, allowedCache cache.Store) *ResultService {
	return &ResultService{db: db, competitions: competitions, rounds: rounds, picks: picks, allowedCache: allowedCache}
}

type ProcessSummary struct {
	PlayersAffected int
	EliminatedCount int
	SurvivorCount   int
}

// ProcessRoundResults applies a round's fixture results to every active
// player: winners advance, everyone else (losers, draw pickers, players
// with no pick) loses a life or is eliminated. The whole round is one
// transaction, and claiming the round up front rejects a second
// submission with ALREADY_PROCESSED.
func (s *ResultService) ProcessRoundResults(ctx context.Context, roundID, actorID uuid.UUID, caps game.CapabilitySet) (*ProcessSummary, error) {
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

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, round.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManageResults); err != nil {
		return nil, err
	}

	claimed, err := s.rounds.ClaimRoundProcessedTx(ctx, tx, roundID, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to claim round: %w", err)
	}
	if !claimed {
		return nil, game.NewError(game.ErrAlreadyProcessed, "round has already been processed")
	}

	summary, err := s.applyRoundTx(ctx, tx, competition, round)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.allowedCache.InvalidateCompetition(competition.ID)

	return summary, nil
}

// ReprocessRound reverts a processed round's per-player effects and
// reapplies them against the current fixture results. This is the only
// supported path after an organizer corrects a result.
func (s *ResultService) ReprocessRound(ctx context.Context, roundID, actorID uuid.UUID, caps game.CapabilitySet) (*ProcessSummary, error) {
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
	if !round.Processed() {
		return nil, game.NewError(game.ErrNotProcessed, "round has not been processed yet")
	}

	competition, err := s.competitions.GetCompetitionTx(ctx, tx, round.CompetitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get competition: %w", err)
	}
	if err := authorize(competition, actorID, caps, game.CapManageResults); err != nil {
		return nil, err
	}

	if err := s.revertRoundTx(ctx, tx, competition, round); err != nil {
		return nil, err
	}

	summary, err := s.applyRoundTx(ctx, tx, competition, round)
	if err != nil {
		return nil, err
	}

	if err := s.rounds.MarkRoundProcessedTx(ctx, tx, roundID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to mark round processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.allowedCache.InvalidateCompetition(competition.ID)

	return summary, nil
}

func (s *ResultService) applyRoundTx(ctx context.Context, tx *sqlx.Tx, competition *game.Competition, round *game.Round) (*ProcessSummary, error) {
	fixtures, err := s.rounds.GetFixturesTx(ctx, tx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get fixtures: %w", err)
	}
	if len(fixtures) == 0 {
		return nil, game.NewError(game.ErrResultsIncomplete, "round has no fixtures")
	}
	winners := make(map[string]struct{})
	for i := range fixtures {
		if fixtures[i].Result == nil {
			return nil, game.NewError(game.ErrResultsIncomplete, "not every fixture has a result")
		}
		if w := fixtures[i].Winner(); w != "" {
			winners[w] = struct{}{}
		}
	}

	players, err := s.competitions.GetActiveCompetitionUsersTx(ctx, tx, competition.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get active players: %w", err)
	}

	pickRows, err := s.picks.GetPicksByRoundTx(ctx, tx, round.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get picks: %w", err)
	}
	pickByUser := make(map[uuid.UUID]game.Pick, len(pickRows))
	for _, p := range pickRows {
		pickByUser[p.UserID] = p
	}

	summary := &ProcessSummary{PlayersAffected: len(players)}
	progress := make([]game.PlayerProgress, 0, len(players))

	for i := range players {
		player := &players[i]
		pick, hasPick := pickByUser[player.UserID]

		var chosen *string
		if hasPick {
			team := pick.Team
			chosen = &team
		}

		won := false
		if hasPick {
			_, won = winners[pick.Team]
		}

		var outcome game.Outcome
		switch {
		case won:
			outcome = game.OutcomeAdvanced
		case player.LivesRemaining > 0:
			player.LivesRemaining--
			if hasPick {
				outcome = game.OutcomeLifeLost
			} else {
				outcome = game.OutcomeNoPick
			}
		default:
			player.Status = game.PlayerOut
			outcome = game.OutcomeEliminated
		}

		if outcome != game.OutcomeAdvanced {
			if err := s.competitions.UpdateCompetitionUserTx(ctx, tx, player); err != nil {
				return nil, fmt.Errorf("failed to update player: %w", err)
			}
		}
		if outcome == game.OutcomeEliminated {
			summary.EliminatedCount++
		} else {
			summary.SurvivorCount++
		}

		progress = append(progress, game.PlayerProgress{
			ID:         uuid.New(),
			RoundID:    round.ID,
			UserID:     player.UserID,
			ChosenTeam: chosen,
			Outcome:    outcome,
		})
	}

	if err := s.picks.CreateProgressTx(ctx, tx, progress); err != nil {
		return nil, fmt.Errorf("failed to write progress: %w", err)
	}

	return summary, nil
}

// revertRoundTx undoes the per-player effects recorded for the round and
// deletes its progress rows. Outcomes map back unambiguously: life_lost
// and no_pick restore one life, eliminated reinstates the player.
func (s *ResultService) revertRoundTx(ctx context.Context, tx *sqlx.Tx, competition *game.Competition, round *game.Round) error {
	progress, err := s.picks.GetProgressByRoundTx(ctx, tx, round.ID)
	if err != nil {
		return fmt.Errorf("failed to get progress: %w", err)
	}

	for _, row := range progress {
		if row.Outcome == game.OutcomeAdvanced {
			continue
		}
		player, err := s.competitions.GetCompetitionUserTx(ctx, tx, competition.ID, row.UserID)
		if err != nil {
			return fmt.Errorf("failed to get player: %w", err)
		}
		switch row.Outcome {
		case game.OutcomeLifeLost, game.OutcomeNoPick:
			player.LivesRemaining++
		case game.OutcomeEliminated:
			player.Status = game.PlayerActive
		}
		if err := s.competitions.UpdateCompetitionUserTx(ctx, tx, player); err != nil {
			return fmt.Errorf("failed to update player: %w", err)
		}
	}

	if err := s.picks.DeleteProgressByRoundTx(ctx, tx, round.ID); err != nil {
		return fmt.Errorf("failed to delete progress: %w", err)
	}
	return nil
}

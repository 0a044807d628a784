package service

import (
	"context"
	"testing"

	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessRoundResults_LifeLost(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	winner := env.joinPlayer(t, competitionID, "winner")
	loser := env.joinPlayer(t, competitionID, "loser")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, winner, round.ID, "ARS")
	require.NoError(t, err)
	_, err = env.pickSvc.SetPick(ctx, loser, round.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	summary := env.process(t, round.ID)
	assert.Equal(t, 2, summary.PlayersAffected)
	assert.Equal(t, 0, summary.EliminatedCount)
	assert.Equal(t, 2, summary.SurvivorCount)

	assert.Equal(t, 2, env.player(t, competitionID, winner).LivesRemaining)

	survivor := env.player(t, competitionID, loser)
	assert.Equal(t, 1, survivor.LivesRemaining)
	assert.Equal(t, game.PlayerActive, survivor.Status)

	progress, err := env.picks.GetProgressByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	outcomes := map[string]game.Outcome{}
	for _, row := range progress {
		outcomes[*row.ChosenTeam] = row.Outcome
	}
	assert.Equal(t, game.OutcomeAdvanced, outcomes["ARS"])
	assert.Equal(t, game.OutcomeLifeLost, outcomes["CHE"])
}

func TestProcessRoundResults_KnockoutElimination(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 0, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	summary := env.process(t, round.ID)
	assert.Equal(t, 1, summary.EliminatedCount)
	assert.Equal(t, 0, summary.SurvivorCount)

	player := env.player(t, competitionID, playerID)
	assert.Equal(t, game.PlayerOut, player.Status)
	assert.Equal(t, 0, player.LivesRemaining)

	progress, err := env.picks.GetProgressByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, game.OutcomeEliminated, progress[0].Outcome)
}

func TestProcessRoundResults_NoPickIsPunished(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "sleeper")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	env.process(t, round.ID)

	player := env.player(t, competitionID, playerID)
	assert.Equal(t, game.PlayerActive, player.Status)
	assert.Equal(t, 0, player.LivesRemaining)

	progress, err := env.picks.GetProgressByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, progress, 1)
	assert.Equal(t, game.OutcomeNoPick, progress[0].Outcome)
	assert.Nil(t, progress[0].ChosenTeam)
}

func TestProcessRoundResults_DrawIsLoss(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	p1 := env.joinPlayer(t, competitionID, "player1")
	p2 := env.joinPlayer(t, competitionID, "player2")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, p1, round.ID, "ARS")
	require.NoError(t, err)
	_, err = env.pickSvc.SetPick(ctx, p2, round.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.Draw)
	env.lockRound(t, round.ID)

	env.process(t, round.ID)

	// A draw advances nobody; both pickers lose a life
	assert.Equal(t, 0, env.player(t, competitionID, p1).LivesRemaining)
	assert.Equal(t, 0, env.player(t, competitionID, p2).LivesRemaining)
}

func TestProcessRoundResults_ResultsIncomplete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE", "LIV", "MCI")
	env.joinPlayer(t, competitionID, "player1")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	env.addFixture(t, round.ID, "LIV", "MCI")
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	_, err := env.resultSvc.ProcessRoundResults(ctx, round.ID, env.organizerID, game.CapabilitySet{})
	requireGameError(t, err, game.ErrResultsIncomplete)

	// The failed run must not leave the round claimed
	fetched, err := env.rounds.GetRound(ctx, round.ID)
	require.NoError(t, err)
	assert.False(t, fetched.Processed())
}

func TestProcessRoundResults_AlreadyProcessed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	env.joinPlayer(t, competitionID, "player1")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	env.process(t, round.ID)

	_, err := env.resultSvc.ProcessRoundResults(ctx, round.ID, env.organizerID, game.CapabilitySet{})
	requireGameError(t, err, game.ErrAlreadyProcessed)
}

func TestProcessRoundResults_Authorization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)

	_, err := env.resultSvc.ProcessRoundResults(ctx, round.ID, playerID, game.CapabilitySet{})
	requireGameError(t, err, game.ErrForbidden)

	// A delegated manage_results capability admits a non-organizer
	_, err = env.resultSvc.ProcessRoundResults(ctx, round.ID, playerID, game.Capabilities(game.CapManageResults))
	require.NoError(t, err)
}

func TestReprocessRound_AfterCorrection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	p1 := env.joinPlayer(t, competitionID, "player1")
	p2 := env.joinPlayer(t, competitionID, "player2")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, p1, round.ID, "ARS")
	require.NoError(t, err)
	_, err = env.pickSvc.SetPick(ctx, p2, round.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)
	env.process(t, round.ID)

	assert.Equal(t, 1, env.player(t, competitionID, p1).LivesRemaining)
	assert.Equal(t, 0, env.player(t, competitionID, p2).LivesRemaining)

	// The result was wrong: CHE actually won
	env.setResult(t, fixture.ID, game.AwayWin)
	_, err = env.resultSvc.ReprocessRound(ctx, round.ID, env.organizerID, game.CapabilitySet{})
	require.NoError(t, err)

	// The reprocessed state matches what a single correct run produces
	assert.Equal(t, 0, env.player(t, competitionID, p1).LivesRemaining)
	assert.Equal(t, 1, env.player(t, competitionID, p2).LivesRemaining)

	progress, err := env.picks.GetProgressByRound(ctx, round.ID)
	require.NoError(t, err)
	require.Len(t, progress, 2)
	outcomes := map[string]game.Outcome{}
	for _, row := range progress {
		outcomes[*row.ChosenTeam] = row.Outcome
	}
	assert.Equal(t, game.OutcomeLifeLost, outcomes["ARS"])
	assert.Equal(t, game.OutcomeAdvanced, outcomes["CHE"])
}

func TestReprocessRound_NotProcessed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 1, true, "ARS", "CHE")
	round := env.newRound(t, competitionID)

	_, err := env.resultSvc.ReprocessRound(ctx, round.ID, env.organizerID, game.CapabilitySet{})
	requireGameError(t, err, game.ErrNotProcessed)
}

func TestReprocessRound_ReinstatesEliminated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 0, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round.ID)
	env.process(t, round.ID)

	assert.Equal(t, game.PlayerOut, env.player(t, competitionID, playerID).Status)

	env.setResult(t, fixture.ID, game.AwayWin)
	_, err = env.resultSvc.ReprocessRound(ctx, round.ID, env.organizerID, game.CapabilitySet{})
	require.NoError(t, err)

	assert.Equal(t, game.PlayerActive, env.player(t, competitionID, playerID).Status)
}

package service

import (
	"context"
	"testing"

	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetPickAndUnselect(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE", "LIV", "MCI")
	playerID := env.joinPlayer(t, competitionID, "player1")
	round := env.newRound(t, competitionID)
	env.addFixture(t, round.ID, "ARS", "CHE")

	pick, err := env.pickSvc.SetPick(ctx, playerID, round.ID, "ARS")
	require.NoError(t, err)
	assert.Equal(t, "ARS", pick.Team)
	assert.False(t, pick.AdminSet)

	// A second pick in the same round is rejected, not replaced
	_, err = env.pickSvc.SetPick(ctx, playerID, round.ID, "CHE")
	requireGameError(t, err, game.ErrPickAlreadyExists)

	result, err := env.pickSvc.UnselectPick(ctx, playerID, round.ID)
	require.NoError(t, err)
	assert.True(t, result.Removed)

	// Unselecting again is a no-op, not an error
	result, err = env.pickSvc.UnselectPick(ctx, playerID, round.ID)
	require.NoError(t, err)
	assert.False(t, result.Removed)

	pick, err = env.pickSvc.SetPick(ctx, playerID, round.ID, "CHE")
	require.NoError(t, err)
	assert.Equal(t, "CHE", pick.Team)
}

func TestSetPick_RoundLocked(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")
	round := env.newRound(t, competitionID)
	env.addFixture(t, round.ID, "ARS", "CHE")
	env.lockRound(t, round.ID)

	_, err := env.pickSvc.SetPick(ctx, playerID, round.ID, "ARS")
	requireGameError(t, err, game.ErrRoundLocked)

	_, err = env.pickSvc.UnselectPick(ctx, playerID, round.ID)
	requireGameError(t, err, game.ErrRoundLocked)
}

func TestSetPick_LockedByResultSubmission(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	p1 := env.joinPlayer(t, competitionID, "player1")
	p2 := env.joinPlayer(t, competitionID, "player2")
	round := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round.ID, "ARS", "CHE")

	_, err := env.pickSvc.SetPick(ctx, p1, round.ID, "ARS")
	require.NoError(t, err)

	// Recording a result closes picks even though lock_time is still
	// two days away
	env.setResult(t, fixture.ID, game.HomeWin)

	_, err = env.pickSvc.SetPick(ctx, p2, round.ID, "CHE")
	requireGameError(t, err, game.ErrRoundLocked)

	_, err = env.pickSvc.UnselectPick(ctx, p1, round.ID)
	requireGameError(t, err, game.ErrRoundLocked)

	// Same once the round has been processed
	env.process(t, round.ID)
	_, err = env.pickSvc.SetPick(ctx, p2, round.ID, "CHE")
	requireGameError(t, err, game.ErrRoundLocked)

	pick, err := env.picks.GetPick(ctx, round.ID, p1)
	require.NoError(t, err)
	assert.Equal(t, "ARS", pick.Team)
}

func TestSetPick_TeamNotInFixtures(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE", "LIV")
	playerID := env.joinPlayer(t, competitionID, "player1")
	round := env.newRound(t, competitionID)
	env.addFixture(t, round.ID, "ARS", "CHE")

	// LIV is a valid team but does not play this round
	_, err := env.pickSvc.SetPick(ctx, playerID, round.ID, "LIV")
	requireGameError(t, err, game.ErrTeamNotInFixtures)
}

func TestSetPick_TeamNotAllowedTwice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE", "LIV", "MCI")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round1 := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round1.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round1.ID, "ARS")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round1.ID)
	env.process(t, round1.ID)

	round2 := env.newRound(t, competitionID)
	env.addFixture(t, round2.ID, "ARS", "LIV")

	_, err = env.pickSvc.SetPick(ctx, playerID, round2.ID, "ARS")
	requireGameError(t, err, game.ErrTeamNotAllowed)

	_, err = env.pickSvc.SetPick(ctx, playerID, round2.ID, "LIV")
	require.NoError(t, err)
}

func TestGetAllowedTeams(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round1 := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round1.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round1.ID, "ARS")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round1.ID)
	env.process(t, round1.ID)
	env.newRound(t, competitionID)

	allowed, err := env.pickSvc.GetAllowedTeams(ctx, competitionID, playerID)
	require.NoError(t, err)
	require.Len(t, allowed.Teams, 1)
	assert.Equal(t, "CHE", allowed.Teams[0].ShortName)
	assert.False(t, allowed.WasReset)
}

func TestGetAllowedTeams_FreshAfterNewRound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round1 := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round1.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round1.ID, "ARS")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.process(t, round1.ID)

	// Warm the cache between processing and the next round opening; the
	// cutoff is still round 1, so the full list comes back
	allowed, err := env.pickSvc.GetAllowedTeams(ctx, competitionID, playerID)
	require.NoError(t, err)
	require.Len(t, allowed.Teams, 2)

	// Opening round 2 moves the cutoff; the cached entry must not
	// survive it
	env.newRound(t, competitionID)
	allowed, err = env.pickSvc.GetAllowedTeams(ctx, competitionID, playerID)
	require.NoError(t, err)
	require.Len(t, allowed.Teams, 1)
	assert.Equal(t, "CHE", allowed.Teams[0].ShortName)
	assert.False(t, allowed.WasReset)
}

func TestGetAllowedTeams_ExhaustionResets(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round1 := env.newRound(t, competitionID)
	fixture1 := env.addFixture(t, round1.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round1.ID, "ARS")
	require.NoError(t, err)
	env.setResult(t, fixture1.ID, game.HomeWin)
	env.lockRound(t, round1.ID)
	env.process(t, round1.ID)

	round2 := env.newRound(t, competitionID)
	fixture2 := env.addFixture(t, round2.ID, "CHE", "ARS")
	_, err = env.pickSvc.SetPick(ctx, playerID, round2.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture2.ID, game.HomeWin)
	env.lockRound(t, round2.ID)
	env.process(t, round2.ID)

	// Both teams used, so the no-team-twice rule resets
	env.newRound(t, competitionID)
	allowed, err := env.pickSvc.GetAllowedTeams(ctx, competitionID, playerID)
	require.NoError(t, err)
	assert.Len(t, allowed.Teams, 2)
	assert.True(t, allowed.WasReset)
}

func TestGetAllowedTeams_EliminatedPlayer(t *testing.T) {
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

	_, err = env.pickSvc.GetAllowedTeams(ctx, competitionID, playerID)
	requireGameError(t, err, game.ErrPlayerEliminated)
}

func TestGetAllowedTeams_NotInCompetition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 2, true, "ARS", "CHE")
	outsiderID := env.createUser(t, "outsider")

	_, err := env.pickSvc.GetAllowedTeams(ctx, competitionID, outsiderID)
	requireGameError(t, err, game.ErrPlayerNotInCompetition)
}

func TestSetPick_EliminatedPlayer(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	competitionID := env.newCompetition(t, 0, true, "ARS", "CHE", "LIV", "MCI")
	playerID := env.joinPlayer(t, competitionID, "player1")

	round1 := env.newRound(t, competitionID)
	fixture := env.addFixture(t, round1.ID, "ARS", "CHE")
	_, err := env.pickSvc.SetPick(ctx, playerID, round1.ID, "CHE")
	require.NoError(t, err)
	env.setResult(t, fixture.ID, game.HomeWin)
	env.lockRound(t, round1.ID)
	env.process(t, round1.ID)

	round2 := env.newRound(t, competitionID)
	env.addFixture(t, round2.ID, "LIV", "MCI")

	_, err = env.pickSvc.SetPick(ctx, playerID, round2.ID, "LIV")
	requireGameError(t, err, game.ErrPlayerEliminated)
}

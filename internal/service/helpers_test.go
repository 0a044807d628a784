package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lmslocal/lmslocal/internal/cache"
	"github.com/lmslocal/lmslocal/internal/game"
	"github.com/lmslocal/lmslocal/internal/store"
	users "github.com/lmslocal/lmslocal/internal/user"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	_, err = database.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	driver, err := sqlite3.WithInstance(database.DB, &sqlite3.Config{})
	require.NoError(t, err, "Failed to create migrate driver instance")

	m, err := migrate.NewWithDatabaseInstance(
		"file://../../migrations",
		"sqlite3",
		driver,
	)
	require.NoError(t, err, "Failed to create migrate instance")

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		require.NoError(t, err, "Failed to apply migrations")
	}

	return database
}

type testEnv struct {
	db           *sqlx.DB
	competitions *store.CompetitionStore
	rounds       *store.RoundStore
	picks        *store.PickStore
	users        *store.UserStore
	allowedCache *cache.MemoryStore

	competitionSvc *CompetitionService
	pickSvc        *PickService
	resultSvc      *ResultService
	adminSvc       *AdminService

	organizerID uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	competitions := store.NewCompetitionStore(db)
	rounds := store.NewRoundStore(db)
	picks := store.NewPickStore(db)
	userStore := store.NewUserStore(db)
	allowedCache := cache.NewMemoryStore()

	return &testEnv{
		db:             db,
		competitions:   competitions,
		rounds:         rounds,
		picks:          picks,
		users:          userStore,
		allowedCache:   allowedCache,
		competitionSvc: NewCompetitionService(db, competitions, rounds, allowedCache),
		pickSvc:        NewPickService(db, competitions, rounds, picks, allowedCache),
		resultSvc:      NewResultService(db, competitions, rounds, picks, allowedCache),
		adminSvc:       NewAdminService(db, competitions, rounds, picks, allowedCache),
		organizerID:    uuid.MustParse(guestUserID),
	}
}

func (e *testEnv) createUser(t *testing.T, username string) uuid.UUID {
	t.Helper()

	user := &users.User{
		ID:       uuid.New(),
		Email:    username + "@example.com",
		Username: username,
	}
	require.NoError(t, e.users.CreateUser(context.Background(), user))
	return user.ID
}

// newCompetition creates and starts a competition owned by the guest
// organizer.
func (e *testEnv) newCompetition(t *testing.T, livesPerPlayer int, noTeamTwice bool, teams ...string) uuid.UUID {
	t.Helper()

	inputs := make([]TeamInput, 0, len(teams))
	for _, name := range teams {
		inputs = append(inputs, TeamInput{ShortName: name, FullName: name + " FC"})
	}

	id, err := e.competitionSvc.CreateCompetition(context.Background(), e.organizerID, "Test League", livesPerPlayer, noTeamTwice, inputs)
	require.NoError(t, err)
	require.NoError(t, e.competitionSvc.StartCompetition(context.Background(), id, e.organizerID))
	return id
}

func (e *testEnv) joinPlayer(t *testing.T, competitionID uuid.UUID, username string) uuid.UUID {
	t.Helper()

	userID := e.createUser(t, username)
	_, err := e.competitionSvc.JoinCompetition(context.Background(), competitionID, userID)
	require.NoError(t, err)
	return userID
}

func (e *testEnv) newRound(t *testing.T, competitionID uuid.UUID) *game.Round {
	t.Helper()

	round, err := e.competitionSvc.CreateRound(context.Background(), competitionID, e.organizerID, game.CapabilitySet{}, time.Now().Add(48*time.Hour))
	require.NoError(t, err)
	return round
}

func (e *testEnv) addFixture(t *testing.T, roundID uuid.UUID, home, away string) *game.Fixture {
	t.Helper()

	fixture, err := e.competitionSvc.AddFixture(context.Background(), roundID, e.organizerID, game.CapabilitySet{}, home, away, time.Now().Add(24*time.Hour))
	require.NoError(t, err)
	return fixture
}

func (e *testEnv) setResult(t *testing.T, fixtureID uuid.UUID, result game.FixtureResult) {
	t.Helper()

	require.NoError(t, e.competitionSvc.SetFixtureResult(context.Background(), fixtureID, e.organizerID, game.CapabilitySet{}, result))
}

func (e *testEnv) process(t *testing.T, roundID uuid.UUID) *ProcessSummary {
	t.Helper()

	summary, err := e.resultSvc.ProcessRoundResults(context.Background(), roundID, e.organizerID, game.CapabilitySet{})
	require.NoError(t, err)
	return summary
}

// lockRound pushes the lock time into the past
func (e *testEnv) lockRound(t *testing.T, roundID uuid.UUID) {
	t.Helper()

	_, err := e.db.Exec("UPDATE rounds SET lock_time = ? WHERE id = ?", time.Now().Add(-time.Hour).UTC(), roundID)
	require.NoError(t, err)
}

func (e *testEnv) player(t *testing.T, competitionID, userID uuid.UUID) *game.CompetitionUser {
	t.Helper()

	cu, err := e.competitions.GetCompetitionUser(context.Background(), competitionID, userID)
	require.NoError(t, err)
	return cu
}

func requireGameError(t *testing.T, err error, code game.ErrorCode) {
	t.Helper()

	require.Error(t, err)
	gameErr, ok := game.AsError(err)
	require.True(t, ok, "expected a domain error, got: %v", err)
	require.Equal(t, code, gameErr.Code)
}

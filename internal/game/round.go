package game

import (
	"time"

	"github.com/google/uuid"
)

type FixtureResult string

const (
	HomeWin FixtureResult = "home_win"
	AwayWin FixtureResult = "away_win"
	Draw    FixtureResult = "draw"
)

type Round struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	CompetitionID uuid.UUID  `db:"competition_id" json:"competition_id"`
	RoundNumber   int        `db:"round_number" json:"round_number"`
	LockTime      time.Time  `db:"lock_time" json:"lock_time"`
	ProcessedAt   *time.Time `db:"processed_at" json:"processed_at"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Locked is the time half of the pick lock, derived from the clock and
// never stored.
func (r *Round) Locked(now time.Time) bool {
	return !now.Before(r.LockTime)
}

func (r *Round) Processed() bool {
	return r.ProcessedAt != nil
}

// PicksClosed reports whether pick changes are closed for the round:
// the lock time has passed, a fixture result has been recorded, or the
// round has been processed. Derived on every call; write paths evaluate
// it inside the same transaction as the mutation.
func PicksClosed(r *Round, fixtures []Fixture, now time.Time) bool {
	if r.Locked(now) || r.Processed() {
		return true
	}
	for i := range fixtures {
		if fixtures[i].Result != nil {
			return true
		}
	}
	return false
}

type Fixture struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	RoundID     uuid.UUID      `db:"round_id" json:"round_id"`
	HomeTeam    string         `db:"home_team" json:"home_team"`
	AwayTeam    string         `db:"away_team" json:"away_team"`
	KickoffTime time.Time      `db:"kickoff_time" json:"kickoff_time"`
	Result      *FixtureResult `db:"result" json:"result"`
}

// Winner returns the short name of the winning side, or "" when the
// fixture is a draw or has no recorded result.
func (f *Fixture) Winner() string {
	if f.Result == nil {
		return ""
	}
	switch *f.Result {
	case HomeWin:
		return f.HomeTeam
	case AwayWin:
		return f.AwayTeam
	}
	return ""
}

func (f *Fixture) Involves(team string) bool {
	return f.HomeTeam == team || f.AwayTeam == team
}

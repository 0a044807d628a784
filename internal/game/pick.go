package game

import (
	"time"

	"github.com/google/uuid"
)

type PlayerStatus string

const (
	PlayerActive PlayerStatus = "active"
	PlayerOut    PlayerStatus = "out"
)

// CompetitionUser is the durable per-player game state within one
// competition.
type CompetitionUser struct {
	CompetitionID  uuid.UUID    `db:"competition_id" json:"competition_id"`
	UserID         uuid.UUID    `db:"user_id" json:"user_id"`
	Status         PlayerStatus `db:"status" json:"status"`
	LivesRemaining int          `db:"lives_remaining" json:"lives_remaining"`
	Paid           bool         `db:"paid" json:"paid"`
	Hidden         bool         `db:"hidden" json:"hidden"`
	ManageResults  bool         `db:"manage_results" json:"manage_results"`
	ManagePlayers  bool         `db:"manage_players" json:"manage_players"`
	ManageFixtures bool         `db:"manage_fixtures" json:"manage_fixtures"`
	JoinedAt       time.Time    `db:"joined_at" json:"joined_at"`
}

// Capabilities converts the stored delegation flags into the explicit
// set admin operations take.
func (cu *CompetitionUser) Capabilities() CapabilitySet {
	s := make(CapabilitySet)
	if cu.ManageResults {
		s[CapManageResults] = struct{}{}
	}
	if cu.ManagePlayers {
		s[CapManagePlayers] = struct{}{}
	}
	if cu.ManageFixtures {
		s[CapManageFixtures] = struct{}{}
	}
	return s
}

type Pick struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RoundID   uuid.UUID `db:"round_id" json:"round_id"`
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	Team      string    `db:"team" json:"team"`
	AdminSet  bool      `db:"admin_set" json:"admin_set"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Outcome string

const (
	OutcomeAdvanced   Outcome = "advanced"
	OutcomeLifeLost   Outcome = "life_lost"
	OutcomeEliminated Outcome = "eliminated"
	OutcomeNoPick     Outcome = "no_pick"
)

// PlayerProgress is an append-only record of what happened to a player
// in one round. Never mutated after creation; reprocessing deletes and
// rewrites the whole round's rows.
type PlayerProgress struct {
	ID         uuid.UUID `db:"id" json:"id"`
	RoundID    uuid.UUID `db:"round_id" json:"round_id"`
	UserID     uuid.UUID `db:"user_id" json:"user_id"`
	ChosenTeam *string   `db:"chosen_team" json:"chosen_team"`
	Outcome    Outcome   `db:"outcome" json:"outcome"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type AuditEntry struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompetitionID uuid.UUID `db:"competition_id" json:"competition_id"`
	UserID        uuid.UUID `db:"user_id" json:"user_id"`
	ActorID       uuid.UUID `db:"actor_id" json:"actor_id"`
	Action        string    `db:"action" json:"action"`
	OldValue      *string   `db:"old_value" json:"old_value"`
	NewValue      *string   `db:"new_value" json:"new_value"`
	Reason        *string   `db:"reason" json:"reason"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

package game

import (
	"time"

	"github.com/google/uuid"
)

type CompetitionStatus string

const (
	CompetitionSetup    CompetitionStatus = "setup"
	CompetitionActive   CompetitionStatus = "active"
	CompetitionComplete CompetitionStatus = "complete"
)

type Competition struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	OrganizerID        uuid.UUID         `db:"organizer_id" json:"organizer_id"`
	Name               string            `db:"name" json:"name"`
	Status             CompetitionStatus `db:"status" json:"status"`
	LivesPerPlayer     int               `db:"lives_per_player" json:"lives_per_player"`
	NoTeamTwice        bool              `db:"no_team_twice" json:"no_team_twice"`
	MaxLives           int               `db:"max_lives" json:"max_lives"`
	CurrentRoundNumber int               `db:"current_round_number" json:"current_round_number"`
	WinnerID           *uuid.UUID        `db:"winner_id" json:"winner_id"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
}

type Team struct {
	ID            uuid.UUID `db:"id" json:"id"`
	CompetitionID uuid.UUID `db:"competition_id" json:"competition_id"`
	ShortName     string    `db:"short_name" json:"short_name"`
	FullName      string    `db:"full_name" json:"full_name"`
}

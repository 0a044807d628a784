package users

import (
	"time"

	"github.com/google/uuid"
)

type ContextKey string

// UserKey carries the authenticated *User on the request context.
const UserKey ContextKey = "user"

// User is an authenticated account, whether it came from an OAuth
// provider or the guest path. Its ID doubles as the player identity
// that competition_users, picks and player_progress rows reference.
type User struct {
	ID         uuid.UUID `db:"id"`
	Email      string    `db:"email"`
	Username   string    `db:"username"`
	CreatedAt  time.Time `db:"created_at"`
	Provider   *string   `db:"provider"`
	ProviderID *string   `db:"provider_id"`
	AvatarURL  *string   `db:"avatar_url"`
}

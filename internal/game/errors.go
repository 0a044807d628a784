package game

import "errors"

type ErrorCode string

const (
	ErrRoundLocked            ErrorCode = "ROUND_LOCKED"
	ErrTeamNotInFixtures      ErrorCode = "TEAM_NOT_IN_FIXTURES"
	ErrTeamNotAllowed         ErrorCode = "TEAM_NOT_ALLOWED"
	ErrPickAlreadyExists      ErrorCode = "PICK_ALREADY_EXISTS"
	ErrPlayerEliminated       ErrorCode = "PLAYER_ELIMINATED"
	ErrResultsIncomplete      ErrorCode = "RESULTS_INCOMPLETE"
	ErrAlreadyProcessed       ErrorCode = "ALREADY_PROCESSED"
	ErrNotProcessed           ErrorCode = "NOT_PROCESSED"
	ErrForbidden              ErrorCode = "FORBIDDEN"
	ErrNotFound               ErrorCode = "NOT_FOUND"
	ErrCompetitionNotActive   ErrorCode = "COMPETITION_NOT_ACTIVE"
	ErrPlayerNotInCompetition ErrorCode = "PLAYER_NOT_IN_COMPETITION"
	ErrInvalidInput           ErrorCode = "INVALID_INPUT"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindConflict
	KindAuthorization
	KindNotFound
)

// Error is a caller-facing domain failure. The calling layer maps codes
// 1:1 to transport-level responses and UI copy.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

func (e *Error) Kind() ErrorKind {
	switch e.Code {
	case ErrRoundLocked, ErrPickAlreadyExists, ErrResultsIncomplete,
		ErrAlreadyProcessed, ErrNotProcessed, ErrCompetitionNotActive,
		ErrPlayerEliminated:
		return KindConflict
	case ErrForbidden:
		return KindAuthorization
	case ErrNotFound, ErrPlayerNotInCompetition:
		return KindNotFound
	}
	return KindValidation
}

// AsError unwraps a domain error, if err carries one.
func AsError(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}

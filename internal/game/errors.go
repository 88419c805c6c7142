// internal/game/errors.go
//
// Error values returned by sessions and the registry.
// Sentinels are matched with errors.Is; the typed errors carry detail for
// the caller and are matched with errors.As.

package game

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for session operations.
var (
	ErrNotFound              = errors.New("session not found")
	ErrWordSourceUnavailable = errors.New("word source could not supply a target word")
	ErrNotParticipant        = errors.New("player is not part of this session")
	ErrSessionClosed         = errors.New("session is no longer open")
	ErrStillActive           = errors.New("session had recent activity")
	ErrMalformedWord         = errors.New("word must be 5 lowercase letters")
)

// ValidationReason says why a guess was rejected.
type ValidationReason int

const (
	WrongLength ValidationReason = iota
	NotAlphabetic
	NotInDictionary
	AlreadyGuessed
)

// Code is the stable machine-readable name of the reason.
func (r ValidationReason) Code() string {
	switch r {
	case WrongLength:
		return "wrong_length"
	case NotAlphabetic:
		return "not_alphabetic"
	case NotInDictionary:
		return "not_in_dictionary"
	case AlreadyGuessed:
		return "already_guessed"
	}
	return "invalid_guess"
}

// ValidationError rejects a guess without changing session state.
type ValidationError struct {
	Reason ValidationReason
	Word   string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case WrongLength:
		return fmt.Sprintf("guess %q must be %d letters", e.Word, WordLength)
	case NotAlphabetic:
		return fmt.Sprintf("guess %q must be letters only", e.Word)
	case NotInDictionary:
		return fmt.Sprintf("%q is not in the word list", e.Word)
	case AlreadyGuessed:
		return fmt.Sprintf("%q was already guessed in this game", e.Word)
	}
	return "invalid guess"
}

// TurnError is returned when a multiplayer participant acts out of turn.
type TurnError struct {
	Player   string
	Expected string
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("not %s's turn, waiting for %s", e.Player, e.Expected)
}

// BusyError lists every intended participant already in a live session of the scope.
type BusyError struct {
	Players []string
}

func (e *BusyError) Error() string {
	return "already in an active game: " + strings.Join(e.Players, ", ")
}

// CapacityError is returned when the participant count does not fit the mode.
type CapacityError struct {
	Mode  Mode
	Count int
}

func (e *CapacityError) Error() string {
	if e.Mode == Multiplayer {
		return fmt.Sprintf("multiplayer needs %d-%d unique players, got %d", MinMultiplayer, MaxMultiplayer, e.Count)
	}
	return fmt.Sprintf("solo needs exactly 1 player, got %d", e.Count)
}

// internal/game/types.go
//
// Core type definitions for the game engine.
// Defines:
//   - LetterState: per-letter knowledge, ordered by information content.
//   - Feedback: the per-position result of one guess.
//   - Mode / State: what kind of game a session is and where it is in its lifecycle.

package game

import "strings"

// WordLength is the fixed length of every target word and guess.
const WordLength = 5

const (
	// MinMultiplayer and MaxMultiplayer bound the participant count of a multiplayer session.
	MinMultiplayer = 2
	MaxMultiplayer = 5
)

// LetterState is the evaluation of a letter. The zero value is Unused, and the
// numeric order is the information order: Unused < Absent < Present < Correct.
type LetterState int

const (
	Unused LetterState = iota
	Absent
	Present
	Correct
)

func (s LetterState) String() string {
	switch s {
	case Absent:
		return "absent"
	case Present:
		return "present"
	case Correct:
		return "correct"
	default:
		return "unused"
	}
}

// MarshalText renders the state as its lowercase name (used in JSON payloads).
func (s LetterState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Feedback holds the state of each position of one guess.
type Feedback [WordLength]LetterState

// Solved reports whether every position is Correct.
func (f Feedback) Solved() bool {
	for _, s := range f {
		if s != Correct {
			return false
		}
	}
	return true
}

// LetterStates holds the best state seen so far for each letter a–z.
type LetterStates [26]LetterState

// Of returns the recorded state of letter r; non a–z runes are Unused.
func (ls LetterStates) Of(r rune) LetterState {
	if r < 'a' || r > 'z' {
		return Unused
	}
	return ls[r-'a']
}

// Fold upgrades the letter states with one guess's feedback.
// A letter's state is never downgraded.
func (ls *LetterStates) Fold(guess string, fb Feedback) {
	for i := 0; i < len(guess) && i < WordLength; i++ {
		j := idx(rune(guess[i]))
		if j < 0 || j >= 26 {
			continue
		}
		if fb[i] > ls[j] {
			ls[j] = fb[i]
		}
	}
}

// Mode tags a session as solo or multiplayer.
type Mode int

const (
	Solo Mode = iota
	Multiplayer
)

func (m Mode) String() string {
	if m == Multiplayer {
		return "multiplayer"
	}
	return "solo"
}

// ParseMode accepts "solo" or "multiplayer" (case-insensitive).
func ParseMode(s string) (Mode, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "solo":
		return Solo, true
	case "multiplayer", "mp":
		return Multiplayer, true
	}
	return Solo, false
}

// State is a session's lifecycle state. Everything except Open is terminal.
type State int

const (
	Open State = iota
	Won
	Forfeited
	Expired
)

func (s State) String() string {
	switch s {
	case Won:
		return "won"
	case Forfeited:
		return "forfeited"
	case Expired:
		return "expired"
	default:
		return "open"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s != Open }

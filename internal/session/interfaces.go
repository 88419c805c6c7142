// internal/session/interfaces.go
//
// Collaborators the registry and reaper depend on. Each is implemented
// elsewhere (words, stats, render, notify) and faked in tests.

package session

import (
	"context"

	"golang.org/x/text/language"

	"github.com/robalobadob/wordler/internal/game"
)

// WordSource supplies target words and validates guesses for a language.
type WordSource interface {
	RandomWord(lang language.Tag) (string, bool)
	IsValidGuess(word string, lang language.Tag) bool
}

// KeyboardLayouts returns the keyboard rows shown under a board.
type KeyboardLayouts interface {
	Keyboard(lang language.Tag) []string
}

// StatsRecorder receives completed solo games.
type StatsRecorder interface {
	RecordGameCompletion(ctx context.Context, scopeID, playerID string, points int) error
	RecordDetailedOutcome(ctx context.Context, playerID string, win bool, guesses int, startingWord string) error
}

// Renderer turns a guess history into a displayable board.
type Renderer interface {
	Render(guesses []string, feedback []game.Feedback, letters game.LetterStates, keyboard []string) ([]byte, error)
}

// Notifier delivers a direct message to a player.
type Notifier interface {
	SendDirectMessage(ctx context.Context, playerID, text string) error
}

// ChannelUpdater marks the channel-visible artifact of a session as expired.
type ChannelUpdater interface {
	MarkExpired(ctx context.Context, sessionID, channelID string) error
}

// internal/game/engine.go
//
// Pure game rules shared by every session.
// Responsibilities:
//   - Normalize and shape-check raw guesses (length, alphabetic a–z).
//   - Score guesses using the classic two‑pass algorithm.
//   - Convert a winning guess count into points.
//
// Nothing here touches session state, the dictionary, or I/O.
package game

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// maxPoints is awarded for a first-guess win; each extra guess costs one point.
const maxPoints = 10

// Normalize trims and lowercases a raw guess.
func Normalize(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// CheckShape validates an already-normalized word for length and alphabet.
// The dictionary check is the word source's job, not this function's.
func CheckShape(word string) error {
	if len(word) != WordLength {
		return &ValidationError{Reason: WrongLength, Word: word}
	}
	if !isAlpha(word) {
		return &ValidationError{Reason: NotAlphabetic, Word: word}
	}
	return nil
}

// ComputeFeedback implements the standard two‑pass scoring algorithm.
//
// Pass 1:
//   - Mark exact matches as Correct.
//   - Count remaining (non‑correct) target letters by letter index.
//
// Pass 2:
//   - For each non‑correct guess letter: if there is remaining count for that
//     letter, mark Present and decrement the count; otherwise mark Absent.
//
// Repeated letters in the guess are never credited beyond their count in the
// target. Inputs must be lowercase 5-letter words; anything else returns
// ErrMalformedWord instead of a partial result.
func ComputeFeedback(guess, target string) (Feedback, error) {
	var res Feedback
	if len(guess) != WordLength || !isAlpha(guess) {
		return res, fmt.Errorf("guess %q: %w", guess, ErrMalformedWord)
	}
	if len(target) != WordLength || !isAlpha(target) {
		return res, fmt.Errorf("target: %w", ErrMalformedWord)
	}

	// Letter frequency for the non‑correct positions (a–z).
	var counts [26]int

	for i := 0; i < WordLength; i++ {
		if guess[i] == target[i] {
			res[i] = Correct
		} else {
			counts[idx(rune(target[i]))]++
		}
	}

	for i := 0; i < WordLength; i++ {
		if res[i] == Correct {
			continue
		}
		j := idx(rune(guess[i]))
		if counts[j] > 0 {
			res[i] = Present
			counts[j]--
		} else {
			res[i] = Absent
		}
	}
	return res, nil
}

// ComputePoints maps a winning guess count to points: max(0, 11-n).
// A non-positive count is a caller bug; it scores 0 and is logged.
func ComputePoints(numGuesses int) int {
	if numGuesses <= 0 {
		log.Warn().Int("guesses", numGuesses).Msg("points requested for non-positive guess count")
		return 0
	}
	points := maxPoints + 1 - numGuesses
	if points < 0 {
		return 0
	}
	return points
}

// idx maps a lowercase ASCII letter rune to 0..25.
func idx(r rune) int { return int(r - 'a') }

// isAlpha checks that a string consists only of lowercase a–z.
func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// Package render draws a session's guess history as a plain-text board.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/robalobadob/wordler/internal/game"
)

var ErrMismatchedRows = errors.New("render: guesses and feedback differ in length")

// Text renders boards like:
//
//	[C] [R] [A] -T- [E]
//
//	 Q   W  -E-  R   T  ...
//
// Correct letters are bracketed, present letters parenthesized, absent
// letters dashed, and unused keyboard letters left bare.
type Text struct{}

func (Text) Render(guesses []string, feedback []game.Feedback, letters game.LetterStates, keyboard []string) ([]byte, error) {
	if len(guesses) != len(feedback) {
		return nil, ErrMismatchedRows
	}

	var b strings.Builder
	for i, g := range guesses {
		if len(g) != game.WordLength {
			return nil, fmt.Errorf("render: row %d: %w", i, game.ErrMalformedWord)
		}
		cells := make([]string, game.WordLength)
		for j := 0; j < game.WordLength; j++ {
			cells[j] = cell(rune(g[j]), feedback[i][j])
		}
		b.WriteString(strings.Join(cells, " "))
		b.WriteByte('\n')
	}

	if len(keyboard) > 0 {
		if len(guesses) > 0 {
			b.WriteByte('\n')
		}
		for i, row := range keyboard {
			b.WriteString(strings.Repeat(" ", i*2))
			keys := make([]string, 0, len(row))
			for _, r := range row {
				keys = append(keys, cell(r, letters.Of(r)))
			}
			b.WriteString(strings.Join(keys, " "))
			b.WriteByte('\n')
		}
	}
	return []byte(b.String()), nil
}

func cell(r rune, st game.LetterState) string {
	u := strings.ToUpper(string(r))
	switch st {
	case game.Correct:
		return "[" + u + "]"
	case game.Present:
		return "(" + u + ")"
	case game.Absent:
		return "-" + u + "-"
	}
	return " " + u + " "
}

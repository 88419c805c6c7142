// internal/words/words.go
//
// Word source for the game engine: one dictionary per language.
//
// Responsibilities:
//   - Load answer and allowed guess lists per language from WORDS_DIR, and
//     always provide the embedded English defaults.
//   - Resolve a session language to the closest loaded dictionary, falling
//     back to English.
//   - Supply RandomWord, IsValidGuess and Keyboard lookups.
//
// Directory layout:
//   WORDS_DIR/<lang>/answers.txt   canonical solutions
//   WORDS_DIR/<lang>/allowed.txt   extra valid guesses (answers are always allowed)
//   WORDS_DIR/<lang>/keyboard.txt  optional keyboard rows
//
// Constraints:
//   • Words must be 5 alphabetic letters (a–z); anything else is dropped.
//   • Lists are normalized to lowercase.
//   • A Source is immutable after Load and safe for concurrent use.

package words

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	"github.com/robalobadob/wordler/assets"
)

var defaultKeyboard = []string{"qwertyuiop", "asdfghjkl", "zxcvbnm"}

// dictionary is the loaded word data for one language.
type dictionary struct {
	tag      language.Tag
	answers  []string
	allowed  map[string]struct{} // answers ∪ guesses
	keyboard []string
}

// Source serves words for every loaded language.
type Source struct {
	dicts   []*dictionary // dicts[0] is English
	matcher language.Matcher
}

// Default returns a Source backed only by the embedded English lists.
func Default() (*Source, error) {
	return Load("")
}

// Load builds a Source from dir (may be empty) plus the embedded English lists.
// A language directory named "en" replaces the embedded English lists.
func Load(dir string) (*Source, error) {
	english, err := embeddedEnglish()
	if err != nil {
		return nil, fmt.Errorf("load embedded words: %w", err)
	}
	byTag := map[language.Tag]*dictionary{language.English: english}
	order := []language.Tag{language.English}

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read words dir %s: %w", dir, err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			tag, err := language.Parse(e.Name())
			if err != nil {
				log.Warn().Str("dir", e.Name()).Msg("skipping word list: not a language tag")
				continue
			}
			d, err := loadDir(filepath.Join(dir, e.Name()), tag)
			if err != nil {
				log.Warn().Err(err).Str("lang", tag.String()).Msg("skipping word list")
				continue
			}
			if _, seen := byTag[tag]; !seen {
				order = append(order, tag)
			}
			byTag[tag] = d
			log.Info().Str("lang", tag.String()).Int("answers", len(d.answers)).Int("allowed", len(d.allowed)).Msg("loaded word list")
		}
	}

	s := &Source{}
	for _, tag := range order {
		s.dicts = append(s.dicts, byTag[tag])
	}
	s.matcher = language.NewMatcher(order)
	return s, nil
}

func embeddedEnglish() (*dictionary, error) {
	ans, err := assets.AnswersList()
	if err != nil {
		return nil, err
	}
	all, err := assets.AllowedList()
	if err != nil {
		return nil, err
	}
	kb, err := assets.KeyboardRows()
	if err != nil {
		return nil, err
	}
	return build(language.English, ans, all, kb)
}

func loadDir(path string, tag language.Tag) (*dictionary, error) {
	ans, err := readWordFile(filepath.Join(path, "answers.txt"))
	if err != nil {
		return nil, err
	}
	all, err := readWordFile(filepath.Join(path, "allowed.txt"))
	if err != nil {
		return nil, err
	}
	kb, err := readLinesFile(filepath.Join(path, "keyboard.txt"))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	return build(tag, ans, all, kb)
}

func build(tag language.Tag, answers, allowed, keyboard []string) (*dictionary, error) {
	d := &dictionary{tag: tag, allowed: make(map[string]struct{}, len(answers)+len(allowed))}
	for _, w := range answers {
		if validWord(w) {
			d.answers = append(d.answers, w)
			d.allowed[w] = struct{}{}
		}
	}
	for _, w := range allowed {
		if validWord(w) {
			d.allowed[w] = struct{}{}
		}
	}
	if len(d.answers) == 0 {
		return nil, fmt.Errorf("words %s: answers list is empty", tag)
	}
	d.keyboard = keyboard
	if len(d.keyboard) == 0 {
		d.keyboard = defaultKeyboard
	}
	return d, nil
}

// readWordFile loads one word per line from a file and keeps only valid words.
func readWordFile(path string) ([]string, error) {
	lines, err := readLinesFile(path)
	if err != nil {
		return nil, err
	}
	out := lines[:0]
	for _, w := range lines {
		if validWord(w) {
			out = append(out, w)
		}
	}
	return out, nil
}

func readLinesFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return assets.ReadLines(f)
}

// validWord reports whether w is 5 lowercase ASCII letters.
func validWord(w string) bool {
	if len(w) != 5 {
		return false
	}
	for _, r := range w {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// resolve picks the dictionary closest to tag; English when nothing matches.
func (s *Source) resolve(tag language.Tag) *dictionary {
	_, i, conf := s.matcher.Match(tag)
	if conf == language.No || i < 0 || i >= len(s.dicts) {
		return s.dicts[0]
	}
	return s.dicts[i]
}

// RandomWord returns a cryptographically random answer for the language.
func (s *Source) RandomWord(tag language.Tag) (string, bool) {
	d := s.resolve(tag)
	if len(d.answers) == 0 {
		return "", false
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(d.answers))))
	if err != nil {
		log.Error().Err(err).Msg("random answer")
		return "", false
	}
	return d.answers[n.Int64()], true
}

// IsValidGuess reports whether word is an allowed guess in the language.
func (s *Source) IsValidGuess(word string, tag language.Tag) bool {
	_, ok := s.resolve(tag).allowed[strings.ToLower(word)]
	return ok
}

// Keyboard returns the keyboard rows for the language.
func (s *Source) Keyboard(tag language.Tag) []string {
	return append([]string(nil), s.resolve(tag).keyboard...)
}

// Supports reports whether tag resolves to a loaded dictionary rather than the fallback.
func (s *Source) Supports(tag language.Tag) bool {
	_, _, conf := s.matcher.Match(tag)
	return conf >= language.High
}

// Languages lists the loaded languages, English first.
func (s *Source) Languages() []language.Tag {
	out := make([]language.Tag, len(s.dicts))
	for i, d := range s.dicts {
		out[i] = d.tag
	}
	return out
}

// Stats returns counts of loaded words for a language: (answers, allowed).
func (s *Source) Stats(tag language.Tag) (answersCount int, allowedCount int) {
	d := s.resolve(tag)
	return len(d.answers), len(d.allowed)
}

package words

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"

	"tagvorto/internal/constants"
	"tagvorto/internal/util"
)

type WordEntry struct {
	Word string `json:"word"`
	Hint string `json:"hint"`
}

type wordFile struct {
	Words []WordEntry `json:"words"`
}

// Corpus holds the ordered answer list and the accepted-guess set. Answers
// are a subset of accepted guesses; the answer ordering is load-bearing:
// WordForDate indexes into it, so reordering or shrinking the list changes
// every future daily word.
type Corpus struct {
	answers  []WordEntry
	accepted map[string]struct{}
	hints    map[string]string
}

// New builds a corpus from in-memory entries. The accepted set always
// includes every answer. Used directly by tests.
func New(answers []WordEntry, accepted []string) (*Corpus, error) {
	if len(answers) == 0 {
		return nil, fmt.Errorf("corpus needs at least one answer word")
	}

	canonical := make([]WordEntry, 0, len(answers))
	for _, entry := range answers {
		w := strings.ToUpper(strings.TrimSpace(entry.Word))
		if len(w) != constants.WordLength {
			util.LogWarn("Skipping word %q: not %d letters", entry.Word, constants.WordLength)
			continue
		}
		canonical = append(canonical, WordEntry{Word: w, Hint: entry.Hint})
	}
	if len(canonical) == 0 {
		return nil, fmt.Errorf("no valid %d-letter answer words", constants.WordLength)
	}

	acceptedSet := make(map[string]struct{}, len(canonical)+len(accepted))
	lo.ForEach(canonical, func(entry WordEntry, _ int) {
		acceptedSet[entry.Word] = struct{}{}
	})
	for _, w := range accepted {
		w = strings.ToUpper(strings.TrimSpace(w))
		if len(w) == constants.WordLength {
			acceptedSet[w] = struct{}{}
		}
	}

	return &Corpus{
		answers:  canonical,
		accepted: acceptedSet,
		hints: lo.Associate(canonical, func(entry WordEntry) (string, string) {
			return entry.Word, entry.Hint
		}),
	}, nil
}

// Load reads the answer list and the accepted-guess list from disk.
func Load(wordsPath, acceptedPath string) (*Corpus, error) {
	util.LogInfo("Loading words from %s", wordsPath)
	data, err := os.ReadFile(wordsPath)
	if err != nil {
		return nil, fmt.Errorf("read words file: %w", err)
	}

	var wf wordFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse words file: %w", err)
	}

	var accepted []string
	if acceptedPath != "" {
		util.LogInfo("Loading accepted words from %s", acceptedPath)
		raw, err := os.ReadFile(acceptedPath)
		if err != nil {
			return nil, fmt.Errorf("read accepted words file: %w", err)
		}
		accepted = strings.Split(string(raw), "\n")
	}

	c, err := New(wf.Words, accepted)
	if err != nil {
		return nil, err
	}
	util.LogInfo("Loaded %d answer words, %d accepted words", len(c.answers), len(c.accepted))
	return c, nil
}

// WordForDate deterministically maps a calendar date to an answer word.
// The seed is derived from the UTC date digits, so the same date always
// yields the same word for the lifetime of the corpus.
func (c *Corpus) WordForDate(date time.Time) string {
	d := date.UTC()
	seed := d.Year()*10000 + int(d.Month())*100 + d.Day()
	return c.answers[seed%len(c.answers)].Word
}

// IsValidWord reports whether the word may be submitted as a guess.
func (c *Corpus) IsValidWord(word string) bool {
	_, ok := c.accepted[strings.ToUpper(strings.TrimSpace(word))]
	return ok
}

// HintFor returns the hint for an answer word, or "" when unknown.
func (c *Corpus) HintFor(word string) string {
	return c.hints[strings.ToUpper(strings.TrimSpace(word))]
}

// AnswerCount is exposed for the health endpoint.
func (c *Corpus) AnswerCount() int {
	return len(c.answers)
}

// AcceptedCount is exposed for the health endpoint.
func (c *Corpus) AcceptedCount() int {
	return len(c.accepted)
}

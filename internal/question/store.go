package question

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/minhng/codequiz/internal/domain"
)

// Store holds the ordered question set loaded once at startup. It is
// immutable after Load; questions are addressed by index.
type Store struct {
	questions []domain.Question
}

type record struct {
	Text          string `json:"text"`
	FunctionStart string `json:"function_start"`
}

// Load reads the question set from a JSON file. A missing file, malformed
// content or an empty question list is an error; callers are expected to
// treat it as fatal.
func Load(path string) (*Store, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("question: read %s: %w", path, err)
	}

	var records []record
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("question: parse %s: %w", path, err)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("question: %s contains no questions", path)
	}

	qs := make([]domain.Question, 0, len(records))
	for i, r := range records {
		if r.Text == "" {
			return nil, fmt.Errorf("question: %s: question %d has no text", path, i)
		}
		qs = append(qs, domain.Question{
			ID:            i,
			Text:          r.Text,
			FunctionStart: r.FunctionStart,
		})
	}

	return &Store{questions: qs}, nil
}

// Get returns the question at the given index.
func (s *Store) Get(i int) (domain.Question, bool) {
	if i < 0 || i >= len(s.questions) {
		return domain.Question{}, false
	}
	return s.questions[i], true
}

// Count returns the number of questions in the set.
func (s *Store) Count() int {
	return len(s.questions)
}

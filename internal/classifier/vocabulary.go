package classifier

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrEmptyVocabulary is returned when a vocabulary source has no labels.
var ErrEmptyVocabulary = errors.New("vocabulary is empty")

// Vocabulary is the ordered label list matching the classifier output.
type Vocabulary []string

// LoadVocabulary reads one label per line. Labels are trimmed and trailing
// blank lines are dropped; blank lines in between are kept so that label
// positions stay aligned with the network output.
func LoadVocabulary(r io.Reader) (Vocabulary, error) {
	var labels Vocabulary
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		labels = append(labels, strings.TrimSpace(scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	for len(labels) > 0 && labels[len(labels)-1] == "" {
		labels = labels[:len(labels)-1]
	}
	if len(labels) == 0 {
		return nil, ErrEmptyVocabulary
	}
	return labels, nil
}

// LoadVocabularyFile reads a vocabulary from path.
func LoadVocabularyFile(path string) (Vocabulary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary: %w", err)
	}
	defer f.Close()

	v, err := LoadVocabulary(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Contains reports whether label is part of the vocabulary.
func (v Vocabulary) Contains(label string) bool {
	for _, l := range v {
		if l == label {
			return true
		}
	}
	return false
}

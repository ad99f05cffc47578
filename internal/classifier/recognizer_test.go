package classifier

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/filter"
)

func TestRecognizer_DefaultChainPicksBest(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClassifier(0.25, 0.5, 0.25)
	r := NewRecognizer(mock, Vocabulary{"hello", "thanks", "please"})

	d, ok, err := r.Recognize(ctx, []float32{1, 2})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, filter.Decision{Label: "thanks", Probability: 0.5}, d)
	assert.Equal(t, [][]float32{{1, 2}}, mock.Inputs())
}

func TestRecognizer_SetFilters(t *testing.T) {
	ctx := context.Background()
	r := NewRecognizer(NewMockClassifier(0.25, 0.5, 0.25), Vocabulary{"hello", "thanks", "please"})

	r.SetFilters(ctx, filter.Chain{filter.NewFocusSublist("hello", "please")})
	assert.Len(t, r.Filters(ctx), 1)

	d, ok, err := r.Recognize(ctx, nil)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "hello", d.Label)

	r.SetFilters(ctx, filter.Chain{filter.Threshold{Min: 0.75}})
	_, ok, err = r.Recognize(ctx, nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecognizer_ClassifierError(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClassifier()
	wantErr := errors.New("inference failed")
	mock.SetError(wantErr)

	_, ok, err := NewRecognizer(mock, Vocabulary{"a"}).Recognize(ctx, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, wantErr)
}

func TestRecognizer_VocabularyMismatch(t *testing.T) {
	ctx := context.Background()
	r := NewRecognizer(NewMockClassifier(0.5, 0.5), Vocabulary{"a"})

	_, ok, err := r.Recognize(ctx, nil)
	assert.False(t, ok)
	assert.ErrorIs(t, err, filter.ErrInvalidArgument)
}

func TestRecognizer_Serialized(t *testing.T) {
	ctx := context.Background()
	r := NewRecognizer(&countingClassifier{}, Vocabulary{"a"})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := r.Recognize(ctx, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestRecognizer_Close(t *testing.T) {
	mock := NewMockClassifier()
	require.NoError(t, NewRecognizer(mock, Vocabulary{"a"}).Close(context.Background()))
	assert.True(t, mock.Closed())
}

// countingClassifier fails if it is ever entered concurrently.
type countingClassifier struct {
	mu     sync.Mutex
	active int
}

func (c *countingClassifier) Classify([]float32) ([]float32, error) {
	c.mu.Lock()
	c.active++
	active := c.active
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.active--
		c.mu.Unlock()
	}()

	if active > 1 {
		return nil, errors.New("concurrent classification")
	}
	return []float32{1}, nil
}

func (c *countingClassifier) Close() error { return nil }

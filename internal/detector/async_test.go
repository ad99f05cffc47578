package detector

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func receive(t *testing.T, a *Async) Result {
	t.Helper()
	select {
	case res, ok := <-a.Results():
		require.True(t, ok, "results channel closed")
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detection result")
		return Result{}
	}
}

func TestAsync_DeliversResultsInOrder(t *testing.T) {
	ctx := context.Background()
	mock := NewMockDetector()
	mock.SetHands([]HandLandmarks{UniformHand(0.3, 0.4)})

	a := NewAsync(ctx, mock, 4)
	defer a.Close()

	for _, ts := range []int64{10, 20, 30} {
		frame := gocv.NewMat()
		require.NoError(t, a.Submit(ctx, &frame, ts, 0))
	}

	for _, want := range []int64{10, 20, 30} {
		res := receive(t, a)
		require.NoError(t, res.Err)
		assert.Equal(t, want, res.Frame.TimestampMs)
		require.Len(t, res.Frame.Hands, 1)
		assert.Equal(t, 0.3, res.Frame.Hands[0].Points[0].X)
	}
	assert.Equal(t, 3, mock.Calls())
}

func TestAsync_PropagatesErrors(t *testing.T) {
	ctx := context.Background()
	mock := NewMockDetector()
	wantErr := errors.New("boom")
	mock.SetError(wantErr)

	a := NewAsync(ctx, mock, 1)
	defer a.Close()

	frame := gocv.NewMat()
	require.NoError(t, a.Submit(ctx, &frame, 5, 7))

	res := receive(t, a)
	assert.ErrorIs(t, res.Err, wantErr)
	assert.Equal(t, int64(5), res.Frame.TimestampMs)
	assert.Equal(t, uint64(7), res.Generation)
}

func TestAsync_NoHands(t *testing.T) {
	ctx := context.Background()
	a := NewAsync(ctx, NewMockDetector(), 1)
	defer a.Close()

	frame := gocv.NewMat()
	require.NoError(t, a.Submit(ctx, &frame, 1, 0))

	res := receive(t, a)
	require.NoError(t, res.Err)
	assert.False(t, res.Frame.HasHands())
}

func TestAsync_Close(t *testing.T) {
	ctx := context.Background()
	mock := NewMockDetector()
	a := NewAsync(ctx, mock, 1)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.True(t, mock.Closed())

	frame := gocv.NewMat()
	assert.ErrorIs(t, a.Submit(ctx, &frame, 1, 0), ErrClosed)

	_, ok := <-a.Results()
	assert.False(t, ok)
}

func TestAsync_SubmitRacingClose(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		mock := NewMockDetector()
		a := NewAsync(ctx, mock, 4)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ts := int64(0); ts < 20; ts++ {
				frame := gocv.NewMat()
				err := a.Submit(ctx, &frame, ts, 0)
				if errors.Is(err, ErrClosed) {
					return
				}
			}
		}()
		require.NoError(t, a.Close())
		wg.Wait()

		frame := gocv.NewMat()
		assert.ErrorIs(t, a.Submit(ctx, &frame, 99, 0), ErrClosed)
		assert.Empty(t, a.requests, "request queued after close")
		assert.True(t, mock.Closed())
	}
}

package progress

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func TestProgressNotificationThrottling(t *testing.T) {
	var updateCount = 0
	mock, accumulator, cleanup := setup(func(float64) { updateCount++ })
	defer cleanup()

	accumulator.Accumulate(1)
	forward(mock, 1*time.Second)

	accumulator.Accumulate(1)
	forward(mock, 1*time.Second)

	require.Equal(t, 1, updateCount)
}

func TestProgressNotificationInterval(t *testing.T) {
	var updateCount = 0
	mock, accumulator, cleanup := setup(func(float64) { updateCount++ })
	defer cleanup()

	accumulator.Accumulate(1)
	forward(mock, 1*time.Second)

	accumulator.Accumulate(1)
	forward(mock, 10*time.Second)

	require.Equal(t, 2, updateCount)
}

func TestProgressBucketChange(t *testing.T) {
	var updateCount = 0
	mock, accumulator, cleanup := setup(func(float64) { updateCount++ })
	defer cleanup()

	accumulator.Accumulate(1)
	forward(mock, 1*time.Second)

	accumulator.Accumulate(25)
	forward(mock, 1*time.Second)

	require.Equal(t, 2, updateCount)
}

func TestFastProgressBucketChange(t *testing.T) {
	var updateCount = 0
	mock, accumulator, cleanup := setup(func(float64) { updateCount++ })
	defer cleanup()

	accumulator.Accumulate(1)
	forward(mock, 1*time.Second)

	accumulator.Accumulate(25)
	forward(mock, 500*time.Millisecond)

	require.Equal(t, 1, updateCount)
}

func TestProgressScaling(t *testing.T) {
	var lastFraction float64
	mock, accumulator, cleanup := setupScaled(func(f float64) { lastFraction = f }, 0.75, 1)
	defer cleanup()

	accumulator.Accumulate(50)
	forward(mock, 1*time.Second)

	require.InDelta(t, 0.875, lastFraction, 1e-9)
}

func TestProgressNeverReportsDone(t *testing.T) {
	var lastFraction float64
	mock, accumulator, cleanup := setupScaled(func(f float64) { lastFraction = f }, 0, 1)
	defer cleanup()

	accumulator.Accumulate(100)
	forward(mock, 1*time.Second)

	// the ticker caps at 99%, completion is reported by the state change
	require.InDelta(t, 0.99, lastFraction, 1e-9)
}

func setup(callback func(float64)) (*clock.Mock, *Accumulator, func()) {
	return setupScaled(callback, 0, 1)
}

func setupScaled(callback func(float64), startFraction, endFraction float64) (*clock.Mock, *Accumulator, func()) {
	var realClock = Clock
	var mock = clock.NewMock()
	Clock = mock

	ctx, cancel := context.WithCancel(context.Background())
	accumulator := NewAccumulator()
	go ReportProgress(ctx, "job-1", 100, accumulator.Size, startFraction, endFraction, callback)

	return mock, accumulator, func() {
		Clock = realClock
		cancel()
	}
}

func forward(mock *clock.Mock, duration time.Duration) {
	// give a chance to other goroutines to execute
	time.Sleep(1 * time.Millisecond)
	mock.Add(duration)
}

func TestCalcProgress(t *testing.T) {
	require.Equal(t, 0.5, calcProgress(50, 100))
	require.Equal(t, 0.99, calcProgress(100, 100))
	require.Equal(t, 0.99, calcProgress(150, 100))
	require.Equal(t, 0.123, calcProgress(1234, 10000))
}

func TestReadHasher(t *testing.T) {
	payload := []byte("some video bytes")
	hasher := NewReadHasher(bytes.NewReader(payload))

	out := bytes.Buffer{}
	n, err := io.Copy(&out, hasher)
	require.NoError(t, err)
	require.Equal(t, int64(len(payload)), n)
	require.Equal(t, payload, out.Bytes())

	want := sha256.Sum256(payload)
	require.Equal(t, hex.EncodeToString(want[:]), hasher.SHA256())
}

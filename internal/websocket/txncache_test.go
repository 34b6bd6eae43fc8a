package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionCache_ExecutesOnce(t *testing.T) {
	c := NewTransactionCache()

	calls := 0
	op := func() (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{"event_id":"$1"}`), nil
	}

	first, err := c.FetchOrExecute("u1/1/m1", op)
	require.NoError(t, err)
	second, err := c.FetchOrExecute("u1/1/m1", op)
	require.NoError(t, err)

	require.Equal(t, 1, calls)
	require.Equal(t, first, second)
	require.Equal(t, 1, c.Len())
}

func TestTransactionCache_DistinctKeys(t *testing.T) {
	c := NewTransactionCache()

	calls := 0
	op := func() (json.RawMessage, error) {
		calls++
		return json.RawMessage(`{}`), nil
	}

	_, err := c.FetchOrExecute("u1/1/m1", op)
	require.NoError(t, err)
	_, err = c.FetchOrExecute("u1/2/m1", op)
	require.NoError(t, err)
	_, err = c.FetchOrExecute("u1/1/m2", op)
	require.NoError(t, err)

	require.Equal(t, 3, calls)
}

func TestTransactionCache_CachesFailures(t *testing.T) {
	c := NewTransactionCache()

	calls := 0
	boom := errors.New("boom")
	op := func() (json.RawMessage, error) {
		calls++
		return nil, boom
	}

	_, err := c.FetchOrExecute("k", op)
	require.ErrorIs(t, err, boom)

	// The failure is committed; the operation must not run again.
	_, err = c.FetchOrExecute("k", op)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 1, calls)
}

func TestTransactionCache_ConcurrentSingleFlight(t *testing.T) {
	c := NewTransactionCache()

	var calls atomic.Int64
	release := make(chan struct{})
	op := func() (json.RawMessage, error) {
		calls.Add(1)
		<-release
		return json.RawMessage(`{"event_id":"$once"}`), nil
	}

	const workers = 16
	results := make([][]byte, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = c.FetchOrExecute("k", op)
		}(i)
	}

	close(release)
	wg.Wait()

	require.Equal(t, int64(1), calls.Load())
	for i := range results {
		require.NoError(t, errs[i])
		require.JSONEq(t, `{"event_id":"$once"}`, string(results[i]))
	}
}

package websocket

import (
	"encoding/json"
	"sync"

	"golang.org/x/sync/singleflight"
)

// TransactionCache makes retried client commands idempotent. It is shared
// by every connection the factory accepts and keyed by
// (user, credential, client message id), so resending the same logical
// request after a client-side timeout never re-executes the operation.
//
// Entries are never evicted here; bounding the cache is the embedding
// process's concern.
type TransactionCache struct {
	group singleflight.Group

	mu      sync.RWMutex
	results map[string]txnOutcome
}

type txnOutcome struct {
	result json.RawMessage
	err    error
}

// NewTransactionCache creates an empty cache.
func NewTransactionCache() *TransactionCache {
	return &TransactionCache{results: make(map[string]txnOutcome)}
}

// FetchOrExecute returns the committed outcome for key if one exists;
// otherwise it runs op exactly once, commits its outcome (success or
// failure), and returns it. Concurrent calls for the same key before the
// first completes all observe that single execution's outcome.
func (c *TransactionCache) FetchOrExecute(key string, op func() (json.RawMessage, error)) (json.RawMessage, error) {
	c.mu.RLock()
	out, ok := c.results[key]
	c.mu.RUnlock()
	if ok {
		return out.result, out.err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// A flight that finished between the lookup above and Do may
		// already have committed.
		c.mu.RLock()
		out, ok := c.results[key]
		c.mu.RUnlock()
		if ok {
			return out.result, out.err
		}

		result, err := op()
		c.mu.Lock()
		c.results[key] = txnOutcome{result: result, err: err}
		c.mu.Unlock()
		return result, err
	})

	var result json.RawMessage
	if v != nil {
		result = v.(json.RawMessage)
	}
	return result, err
}

// Len returns the number of committed entries.
func (c *TransactionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.results)
}

package storage

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLockRegistry_SamePairSameLock(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()
	assert.Same(t, r.Get("12345", "repo"), r.Get("12345", "repo"))
	assert.NotSame(t, r.Get("12345", "repo"), r.Get("12345", "other"))
	assert.NotSame(t, r.Get("12345", "repo"), r.Get("67890", "repo"))
}

func TestLockRegistry_ConcurrentGet(t *testing.T) {
	t.Parallel()

	r := NewLockRegistry()

	var wg sync.WaitGroup
	locks := make([]*sync.RWMutex, 32)
	for i := range locks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			locks[i] = r.Get("12345", "repo")
		}(i)
	}
	wg.Wait()

	for _, l := range locks {
		assert.Same(t, locks[0], l)
	}
}

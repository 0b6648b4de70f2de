package topicsync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDAllocator(t *testing.T) {
	a := NewIDAllocator()
	assert.Equal(t, "0-1", a.Next())
	assert.Equal(t, "0-2", a.Next())

	a.SetClientID("7")
	assert.Equal(t, "7", a.ClientID())
	assert.Equal(t, "7-3", a.Next())
}

func TestIDAllocatorConcurrent(t *testing.T) {
	a := NewIDAllocator()
	const workers, per = 8, 200

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range per {
				id := a.Next()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*per)
}

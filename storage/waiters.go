package storage

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// waiterShardCount must be a power of 2
const waiterShardCount = 16

// waiterHub wakes goroutines blocked on list keys when those keys receive a
// push. Subscriptions are spread over shards chosen by key hash.
type waiterHub struct {
	shards [waiterShardCount]waiterShard
}

type waiterShard struct {
	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

func newWaiterHub() *waiterHub {
	h := &waiterHub{}
	for i := range h.shards {
		h.shards[i].waiters = make(map[string]map[chan struct{}]struct{})
	}
	return h
}

func (h *waiterHub) shardFor(key string) *waiterShard {
	return &h.shards[xxhash.Sum64String(key)&(waiterShardCount-1)]
}

// subscribe registers one channel under every key. The channel has a buffer
// of one so a wakeup between two waits is not lost.
func (h *waiterHub) subscribe(keys ...string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	for _, key := range keys {
		sh := h.shardFor(key)
		sh.mu.Lock()
		set, ok := sh.waiters[key]
		if !ok {
			set = make(map[chan struct{}]struct{})
			sh.waiters[key] = set
		}
		set[ch] = struct{}{}
		sh.mu.Unlock()
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			for _, key := range keys {
				sh := h.shardFor(key)
				sh.mu.Lock()
				if set, ok := sh.waiters[key]; ok {
					delete(set, ch)
					if len(set) == 0 {
						delete(sh.waiters, key)
					}
				}
				sh.mu.Unlock()
			}
		})
	}

	return ch, cancel
}

// notify wakes every waiter subscribed to key without blocking
func (h *waiterHub) notify(key string) {
	sh := h.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for ch := range sh.waiters[key] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// count returns the number of subscriptions for key
func (h *waiterHub) count(key string) int {
	sh := h.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	return len(sh.waiters[key])
}

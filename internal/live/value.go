package live

import "sync"

// Value is a conflated state holder. Watchers always see the latest value;
// intermediate values may be skipped when a watcher falls behind.
type Value[T any] struct {
	mu       sync.Mutex
	current  T
	watchers map[uint64]chan T
	nextID   uint64
}

// NewValue returns a holder initialised to v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{current: v, watchers: make(map[uint64]chan T)}
}

// Load returns the current value.
func (v *Value[T]) Load() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Store replaces the current value and publishes it to every watcher.
func (v *Value[T]) Store(next T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = next
	for _, ch := range v.watchers {
		// drop the stale pending value, if any
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}

// Watch returns a channel that immediately holds the current value and then
// receives each later value, conflated. The returned func stops the watch and
// closes the channel.
func (v *Value[T]) Watch() (<-chan T, func()) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nextID++
	id := v.nextID
	ch := make(chan T, 1)
	ch <- v.current
	v.watchers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			v.mu.Lock()
			defer v.mu.Unlock()
			delete(v.watchers, id)
			close(ch)
		})
	}
}

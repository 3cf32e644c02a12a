package live

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueWatchGetsCurrentFirst(t *testing.T) {
	v := NewValue("all")
	ch, stop := v.Watch()
	defer stop()

	assert.Equal(t, "all", <-ch)
}

func TestValueConflates(t *testing.T) {
	v := NewValue(0)
	ch, stop := v.Watch()
	defer stop()

	v.Store(1)
	v.Store(2)
	v.Store(3)

	assert.Equal(t, 3, <-ch)
	assert.Equal(t, 3, v.Load())
	select {
	case got := <-ch:
		t.Fatalf("unexpected extra value %d", got)
	default:
	}
}

func TestValueStopClosesChannel(t *testing.T) {
	v := NewValue(1)
	ch, stop := v.Watch()
	<-ch
	stop()
	stop()

	_, ok := <-ch
	assert.False(t, ok)

	// Stores after stop must not panic on the closed channel.
	v.Store(2)
	assert.Equal(t, 2, v.Load())
}

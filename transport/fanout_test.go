package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFanout_PublishOrder(t *testing.T) {
	f := NewFanout[int]()

	var got []string
	f.Subscribe(func(v int) { got = append(got, "a") })
	f.Subscribe(func(v int) { got = append(got, "b") })
	f.Subscribe(func(v int) { got = append(got, "c") })

	f.Publish(1)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestFanout_Unsubscribe(t *testing.T) {
	f := NewFanout[int]()

	var count int
	unsub := f.Subscribe(func(int) { count++ })
	require.Equal(t, 1, f.Len())

	f.Publish(1)
	unsub()
	unsub() // idempotent
	f.Publish(2)

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, f.Len())
}

func TestFanout_UnsubscribeFromHandler(t *testing.T) {
	f := NewFanout[int]()

	var first, second int
	var unsub func()
	unsub = f.Subscribe(func(int) {
		first++
		unsub()
	})
	f.Subscribe(func(int) { second++ })

	f.Publish(1)
	f.Publish(2)

	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
	assert.Equal(t, 1, f.Len())
}

func TestFanout_SubscribeFromHandler(t *testing.T) {
	f := NewFanout[int]()

	var late int
	f.Subscribe(func(v int) {
		if v == 1 {
			f.Subscribe(func(int) { late++ })
		}
	})

	f.Publish(1)
	assert.Equal(t, 0, late, "subscriber added during publish sees only later values")
	f.Publish(2)
	assert.Equal(t, 1, late)
}

func TestEvent_String(t *testing.T) {
	assert.Equal(t, "connected", EventConnected.String())
	assert.Equal(t, "disconnected", EventDisconnected.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", Event(42).String())
}

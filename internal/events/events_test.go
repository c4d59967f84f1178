package events

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(4)
	a, cancelA := bus.Subscribe()
	defer cancelA()
	b, cancelB := bus.Subscribe()
	defer cancelB()

	bus.Emit(UpdateProgress, "hello")

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, UpdateProgress, ev.Name)
		assert.Equal(t, "hello", ev.Payload)
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(1)
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.Emit(UpdateProgress, 1)
	bus.Emit(UpdateProgress, 2) // dropped, must not block

	ev := <-ch
	assert.Equal(t, 1, ev.Payload)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %v", ev)
	default:
	}
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus(0)
	ch, cancel := bus.Subscribe()
	require.Equal(t, 1, bus.Subscribers())

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
	assert.Equal(t, 0, bus.Subscribers())

	// Emitting with no subscribers is a no-op.
	bus.Emit(UpdateAvailable, nil)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewJSONWriter(&buf)
	w.Emit(UpdateAvailable, map[string]string{"latest": "1.2.0"})
	w.Emit(UpdateProgress, map[string]string{"stage": "checking"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var ev struct {
		Event   string            `json:"event"`
		Payload map[string]string `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &ev))
	assert.Equal(t, "update-available", ev.Event)
	assert.Equal(t, "1.2.0", ev.Payload["latest"])
}

func TestMultiAndDiscard(t *testing.T) {
	var got []Name
	rec := EmitterFunc(func(n Name, _ any) { got = append(got, n) })

	Multi{rec, nil, Discard, rec}.Emit(UpdateProgress, nil)
	assert.Equal(t, []Name{UpdateProgress, UpdateProgress}, got)
}

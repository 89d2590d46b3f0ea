package state

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"sim-gateway-go/internal/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var rpmLeft = Control{Address: 5, Caption: "RPM Left", SimType: "dcs"}

func TestRound(t *testing.T) {
	tests := []struct {
		name  string
		scale int
		in    float64
		want  float64
	}{
		{name: "half to even down", scale: 0, in: 0.5, want: 0},
		{name: "half to even up", scale: 0, in: 1.5, want: 2},
		{name: "half to even 2.5", scale: 0, in: 2.5, want: 2},
		{name: "negative half", scale: 0, in: -2.5, want: -2},
		{name: "scale 1", scale: 1, in: 93.26, want: 93.3},
		{name: "scale 4 truncates noise", scale: 4, in: 1.00001, want: 1},
		{name: "scale 4 keeps digits", scale: 4, in: 0.12344, want: 0.1234},
		{name: "negative scale treated as 0", scale: -2, in: 7.6, want: 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Round(tt.scale)(tt.in), 1e-9)
		})
	}
}

func TestEncoders(t *testing.T) {
	assert.Equal(t, []byte("1"), EncodeBool(true))
	assert.Equal(t, []byte("0"), EncodeBool(false))
	assert.Equal(t, []byte("10.5"), EncodeFloat(10.5))
	assert.Equal(t, []byte("3200"), EncodeFloat(3200))
	assert.Equal(t, []byte("abc"), EncodeString("abc"))
}

func TestFloatVariable_ChangeDetection(t *testing.T) {
	q := NewQueue()
	v := NewFloat(rpmLeft, DefaultScale, q)

	tests := []struct {
		in        float64
		wantEvent bool
		wantValue float64
	}{
		{in: 1.00001, wantEvent: true, wantValue: 1},
		{in: 1.00004, wantEvent: false, wantValue: 1},
		{in: 1.5, wantEvent: true, wantValue: 1.5},
		{in: 1.5, wantEvent: false, wantValue: 1.5},
		{in: 0, wantEvent: true, wantValue: 0},
	}
	for _, tt := range tests {
		changed := v.Set(tt.in)
		assert.Equal(t, tt.wantEvent, changed, "set %v", tt.in)
		assert.Equal(t, tt.wantValue, v.Get())
	}

	events := q.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, 1.0, events[0].Value)
	assert.Equal(t, 0.0, events[0].OldValue)
	assert.Equal(t, []byte("1"), events[0].Payload)
	assert.Equal(t, 1.5, events[1].Value)
	assert.Equal(t, 1.0, events[1].OldValue)
	assert.Equal(t, 0.0, events[2].Value)
	assert.Equal(t, rpmLeft, events[2].Control)
	assert.False(t, events[2].Time.IsZero())
}

func TestFloatVariable_NaNIsStable(t *testing.T) {
	q := NewQueue()
	v := NewFloat(rpmLeft, DefaultScale, q)

	for i := 0; i < 5; i++ {
		v.Set(math.NaN())
	}
	assert.True(t, math.IsNaN(v.Get()))
	assert.True(t, v.Set(2))

	events := q.Drain()
	require.Len(t, events, 2)
	assert.True(t, math.IsNaN(events[0].Value.(float64)))
	assert.True(t, math.IsNaN(events[1].OldValue.(float64)))
	assert.Equal(t, []byte("2"), events[1].Payload)
}

func TestSameFloat(t *testing.T) {
	assert.True(t, SameFloat(1.5, 1.5))
	assert.True(t, SameFloat(math.NaN(), math.NaN()))
	assert.False(t, SameFloat(math.NaN(), 0))
	assert.False(t, SameFloat(1, 2))
}

func TestBoolAndStringVariables(t *testing.T) {
	q := NewQueue()
	b := NewBool(Control{Address: 9, Caption: "Start L"}, q)
	s := NewString(Control{Address: 20, Caption: "Display"}, q)

	assert.False(t, b.Set(false))
	assert.True(t, b.Set(true))
	assert.True(t, s.Set("HELLO"))
	assert.False(t, s.Set("HELLO"))

	events := q.Drain()
	require.Len(t, events, 2)
	assert.Equal(t, []byte("1"), events[0].Payload)
	assert.Equal(t, []byte("HELLO"), events[1].Payload)
	assert.Equal(t, 9, b.Control().Address)
}

func TestVariable_NilSink(t *testing.T) {
	v := NewVariable[int](Control{Address: 1}, 3, nil)
	assert.True(t, v.Set(4))
	assert.Equal(t, 4, v.Get())
}

func TestVariable_ConcurrentSetsKeepEveryTransition(t *testing.T) {
	q := NewQueue()
	v := NewVariable[int](Control{Address: 1}, 0, q)

	const writers = 8
	const perWriter = 200
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 1; i <= perWriter; i++ {
				v.Set(w*perWriter + i)
			}
		}(w)
	}
	wg.Wait()

	events := q.Drain()
	// every Set stores a distinct value, so every call is a transition
	assert.Len(t, events, writers*perWriter)
	for _, ev := range events {
		assert.NotEqual(t, ev.Value, ev.OldValue)
	}
}

func TestQueue_DrainIsFIFO(t *testing.T) {
	q := NewQueue()
	assert.Nil(t, q.Drain())
	for i := 0; i < 5; i++ {
		q.Emit(Event{Control: Control{Address: i}})
	}
	assert.Equal(t, 5, q.Len())
	events := q.Drain()
	for i, ev := range events {
		assert.Equal(t, i, ev.Control.Address)
	}
	assert.Zero(t, q.Len())
}

func TestProcessor_HandlersRunInOrder(t *testing.T) {
	q := NewQueue()
	var calls []string
	first := func(ev Event) { calls = append(calls, "log:"+ev.Control.Caption) }
	second := func(ev Event) { calls = append(calls, "dispatch:"+ev.Control.Caption) }
	p := NewProcessor(q, 0, logger.NewClient("ERROR"), first, second)

	q.Emit(Event{Control: Control{Caption: "a"}})
	q.Emit(Event{Control: Control{Caption: "b"}})

	assert.Equal(t, 2, p.Tick())
	assert.Equal(t, []string{"log:a", "dispatch:a", "log:b", "dispatch:b"}, calls)
	assert.Equal(t, 0, p.Tick())
}

func TestProcessor_PanickingHandlerDoesNotStopOthers(t *testing.T) {
	q := NewQueue()
	var seen int
	p := NewProcessor(q, 0, logger.NewClient("ERROR"),
		func(Event) { panic("boom") },
		func(Event) { seen++ },
	)
	q.Emit(Event{})
	q.Emit(Event{})

	assert.NotPanics(t, func() { p.Tick() })
	assert.Equal(t, 2, seen)
}

func TestProcessor_Run(t *testing.T) {
	q := NewQueue()
	var mu sync.Mutex
	var got []Event
	p := NewProcessor(q, 5*time.Millisecond, logger.NewClient("ERROR"), func(ev Event) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = p.Run(ctx)
		close(done)
	}()

	v := NewFloat(rpmLeft, 0, q)
	v.Set(3200)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}

func TestLogHandler(t *testing.T) {
	assert.NotPanics(t, func() {
		LogHandler(logger.NewClient("DEBUG"))(Event{Control: rpmLeft, Value: 1.0, OldValue: 0.0})
	})
}

package voice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPlaybackScheduler_Gapless(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		frames := rapid.SliceOfN(rapid.IntRange(1, 4800), 1, 20).Draw(t, "frames")

		player := &fakePlayer{}
		sched := NewPlaybackScheduler(player, nil)

		var want float64
		for i, n := range frames {
			start, err := sched.Enqueue(make([]byte, n*2), 24000, 1)
			if err != nil {
				t.Fatalf("Enqueue(%d) error: %v", i, err)
			}
			if diff := start - want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("buffer %d starts at %v, want %v", i, start, want)
			}
			want += float64(n) / 24000
		}
		if got := sched.Active(); got != len(frames) {
			t.Fatalf("Active() = %d, want %d", got, len(frames))
		}
		if diff := sched.Clock() - want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("Clock() = %v, want %v", sched.Clock(), want)
		}
	})
}

func TestPlaybackScheduler_DeviceAhead(t *testing.T) {
	player := &fakePlayer{}
	sched := NewPlaybackScheduler(player, nil)

	start, err := sched.Enqueue(make([]byte, 4800), 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, start)

	// The device has played past the end of everything scheduled.
	player.setNow(5)
	start, err = sched.Enqueue(make([]byte, 4800), 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 5.0, start)
	assert.InDelta(t, 5.1, sched.Clock(), 1e-9)
}

func TestPlaybackScheduler_Interrupt(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	sched := NewPlaybackScheduler(player, func() { drained++ })

	for range 3 {
		_, err := sched.Enqueue(make([]byte, 2400), 24000, 1)
		require.NoError(t, err)
	}
	require.InDelta(t, 0.15, sched.Clock(), 1e-9)

	sched.Interrupt()

	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, 0.0, sched.Clock())
	assert.Equal(t, 0, drained, "interrupt must not report a drain")
	for i, pb := range player.all() {
		assert.True(t, pb.stopped.Load(), "playback %d not stopped", i)
	}

	start, err := sched.Enqueue(make([]byte, 2400), 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, start, "next buffer must not start at the old clock")
}

func TestPlaybackScheduler_InterruptUsesDeviceBaseline(t *testing.T) {
	player := &fakePlayer{}
	sched := NewPlaybackScheduler(player, nil)
	player.setNow(2)
	_, err := sched.Enqueue(make([]byte, 48000), 24000, 1)
	require.NoError(t, err)

	sched.Interrupt()
	player.setNow(2.25)

	start, err := sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 2.25, start)
}

func TestPlaybackScheduler_Drained(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	sched := NewPlaybackScheduler(player, func() { drained++ })

	_, err := sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)
	_, err = sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)

	pbs := player.all()
	pbs[0].finish()
	assert.Equal(t, 0, drained)
	assert.Equal(t, 1, sched.Active())

	pbs[1].finish()
	assert.Equal(t, 1, drained)
	assert.Equal(t, 0, sched.Active())
}

func TestPlaybackScheduler_StaleCallbackAfterInterrupt(t *testing.T) {
	player := &fakePlayer{}
	drained := 0
	sched := NewPlaybackScheduler(player, func() { drained++ })

	_, err := sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)
	old := player.all()[0]

	// Interrupt clears the set before stopping, so the ended callback of
	// the stopped buffer finds nothing to remove.
	sched.Interrupt()
	_, err = sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)
	old.finish()

	assert.Equal(t, 1, sched.Active())
	assert.Equal(t, 0, drained)
}

func TestPlaybackScheduler_Malformed(t *testing.T) {
	player := &fakePlayer{}
	sched := NewPlaybackScheduler(player, nil)
	_, err := sched.Enqueue(make([]byte, 480), 24000, 1)
	require.NoError(t, err)
	clock := sched.Clock()

	_, err = sched.Enqueue([]byte{1, 2, 3}, 24000, 1)
	require.Error(t, err)
	assert.True(t, IsMalformedAudio(err))
	assert.Equal(t, clock, sched.Clock())
	assert.Equal(t, 1, sched.Active())
	assert.Equal(t, 1, player.count())
}

func TestPlaybackScheduler_EmptyChunk(t *testing.T) {
	player := &fakePlayer{}
	sched := NewPlaybackScheduler(player, nil)
	_, err := sched.Enqueue(nil, 24000, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, 0, player.count())
}

func TestPlaybackScheduler_ScheduleError(t *testing.T) {
	player := &fakePlayer{failNext: errors.New("device gone")}
	sched := NewPlaybackScheduler(player, nil)
	_, err := sched.Enqueue(make([]byte, 480), 24000, 1)
	require.Error(t, err)
	assert.False(t, IsMalformedAudio(err))
	assert.Equal(t, 0, sched.Active())
	assert.Equal(t, 0.0, sched.Clock())
}

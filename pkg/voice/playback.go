package voice

import (
	"fmt"
	"sync"

	"github.com/haivivi/nova/pkg/audio/pcm"
)

// PlaybackScheduler plays decoded audio chunks back to back on an output
// clock. Each chunk starts at max(clock, device time) and the clock advances
// by the chunk duration as soon as it is scheduled, so chunks that arrive
// faster than real time play without gaps or overlap.
//
// Completion callbacks from the device never run under the scheduler lock.
type PlaybackScheduler struct {
	player    pcm.Player
	onDrained func()

	mu     sync.Mutex
	clock  float64
	active map[*scheduled]struct{}
}

type scheduled struct {
	playback pcm.Playback
	start    float64
	duration float64
}

// NewPlaybackScheduler creates a scheduler on player. onDrained, if not nil,
// is called when the last in-flight buffer finishes playing. It is not
// called for buffers removed by Interrupt.
func NewPlaybackScheduler(player pcm.Player, onDrained func()) *PlaybackScheduler {
	return &PlaybackScheduler{
		player:    player,
		onDrained: onDrained,
		active:    make(map[*scheduled]struct{}),
	}
}

// Enqueue decodes a PCM16 chunk and schedules it after everything already
// scheduled. It returns the scheduled start time. An empty chunk schedules
// nothing. A chunk whose length does not match the channel framing fails
// with a CodeMalformedAudio error and leaves the scheduler unchanged.
func (p *PlaybackScheduler) Enqueue(data []byte, sampleRate, channels int) (float64, error) {
	buf, err := pcm.DecodeFrame(data, sampleRate, channels)
	if err != nil {
		return 0, NewError(CodeMalformedAudio, "malformed audio chunk", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	at := max(p.clock, p.player.Now())
	if buf.Frames() == 0 {
		return at, nil
	}
	item := &scheduled{start: at, duration: buf.Duration()}
	pb, err := p.player.Schedule(buf, at, func() { p.ended(item) })
	if err != nil {
		return 0, fmt.Errorf("voice: schedule playback: %w", err)
	}
	item.playback = pb
	p.active[item] = struct{}{}
	p.clock = at + item.duration
	return at, nil
}

// Interrupt stops every in-flight buffer, clears the set and resets the
// clock to zero so the next chunk starts immediately.
func (p *PlaybackScheduler) Interrupt() {
	p.mu.Lock()
	stopped := make([]*scheduled, 0, len(p.active))
	for item := range p.active {
		stopped = append(stopped, item)
	}
	clear(p.active)
	p.clock = 0
	p.mu.Unlock()

	for _, item := range stopped {
		item.playback.Stop()
	}
}

// Active returns the number of buffers scheduled or playing.
func (p *PlaybackScheduler) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Clock returns the end time of the last scheduled buffer in seconds.
func (p *PlaybackScheduler) Clock() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clock
}

func (p *PlaybackScheduler) ended(item *scheduled) {
	p.mu.Lock()
	_, ok := p.active[item]
	if ok {
		delete(p.active, item)
	}
	drained := ok && len(p.active) == 0
	p.mu.Unlock()

	if drained && p.onDrained != nil {
		p.onDrained()
	}
}

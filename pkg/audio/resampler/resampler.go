package resampler

import (
	"fmt"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Converter resamples a continuous mono float stream from one rate to
// another. It keeps filter state between calls, so consecutive Process calls
// must belong to the same stream.
type Converter struct {
	srcRate int
	dstRate int

	mu sync.Mutex
	rs resampling.Resampler
	in []float64
}

// New creates a mono Converter. When the rates are equal Process is a copy.
func New(srcRate, dstRate int) (*Converter, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("resampler: invalid rates %d -> %d", srcRate, dstRate)
	}
	c := &Converter{srcRate: srcRate, dstRate: dstRate}
	if srcRate == dstRate {
		return c, nil
	}
	rs, err := resampling.New(&resampling.Config{
		InputRate:  float64(srcRate),
		OutputRate: float64(dstRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("resampler: create %d -> %d: %w", srcRate, dstRate, err)
	}
	c.rs = rs
	return c, nil
}

// SrcRate returns the input sample rate.
func (c *Converter) SrcRate() int { return c.srcRate }

// DstRate returns the output sample rate.
func (c *Converter) DstRate() int { return c.dstRate }

// Process feeds samples into the converter and returns whatever output is
// ready. The output length follows the rate ratio only on average.
func (c *Converter) Process(samples []float32) ([]float32, error) {
	if c.rs == nil {
		out := make([]float32, len(samples))
		copy(out, samples)
		return out, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if cap(c.in) < len(samples) {
		c.in = make([]float64, len(samples))
	}
	in := c.in[:len(samples)]
	for i, s := range samples {
		in[i] = float64(s)
	}
	res, err := c.rs.Process(in)
	if err != nil {
		return nil, fmt.Errorf("resampler: process: %w", err)
	}
	return toFloat32(res), nil
}

// Flush returns the samples still held by the filter and resets the
// converter, so the next Process call starts a new stream.
func (c *Converter) Flush() ([]float32, error) {
	if c.rs == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.rs.Flush()
	c.rs.Reset()
	if err != nil {
		return nil, fmt.Errorf("resampler: flush: %w", err)
	}
	return toFloat32(res), nil
}

// Reset drops the filter state without returning it.
func (c *Converter) Reset() {
	if c.rs == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rs.Reset()
}

func toFloat32(res []float64) []float32 {
	out := make([]float32, len(res))
	for i, s := range res {
		switch {
		case s > 1:
			s = 1
		case s < -1:
			s = -1
		}
		out[i] = float32(s)
	}
	return out
}

// Resample converts a self-contained mono clip. The result always holds
// round(len(samples) * dstRate / srcRate) samples: the filter is flushed and
// any shortfall is padded with silence. Consecutive pieces of one stream
// should go through a Converter instead, which keeps the filter state across
// the boundary.
func Resample(samples []float32, srcRate, dstRate int) ([]float32, error) {
	c, err := New(srcRate, dstRate)
	if err != nil {
		return nil, err
	}
	if srcRate == dstRate {
		return c.Process(samples)
	}
	want := (len(samples)*dstRate + srcRate/2) / srcRate

	out, err := c.Process(samples)
	if err != nil {
		return nil, err
	}
	if len(out) < want {
		tail, err := c.Flush()
		if err != nil {
			return nil, err
		}
		out = append(out, tail...)
	}
	if len(out) >= want {
		return out[:want], nil
	}
	full := make([]float32, want)
	copy(full, out)
	return full, nil
}

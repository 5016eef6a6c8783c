// Package vad detects local speech and tracks the speaking state of remote peers.
package vad

import "time"

const (
	DefaultThreshold = 15
	DefaultSmoothing = 0.3
	DefaultHold      = 200 * time.Millisecond
	DefaultInterval  = 50 * time.Millisecond
)

type Config struct {
	// Threshold is the smoothed level, on a 0-255 scale, above which the signal counts as speech.
	Threshold float64
	Smoothing float64
	// Debounce is how long the level must stay above Threshold before speaking turns on.
	Debounce time.Duration
	// Hold is how long the level must stay below Threshold before speaking turns off.
	Hold     time.Duration
	Interval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Smoothing <= 0 || c.Smoothing > 1 {
		c.Smoothing = DefaultSmoothing
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultHold
	}
	if c.Hold <= 0 {
		c.Hold = DefaultHold
	}
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	return c
}

// Detector is an amplitude threshold with hysteresis over a smoothed level.
type Detector struct {
	cfg        Config
	smoothed   float64
	speaking   bool
	aboveSince time.Time
	belowSince time.Time
}

func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults()}
}

// Sample feeds one level reading. changed is true only on a transition.
// While muted the output is false and no true transition can happen.
func (d *Detector) Sample(level float64, now time.Time, muted bool) (speaking, changed bool) {
	if muted {
		changed = d.speaking
		d.Reset()
		return false, changed
	}

	s := d.cfg.Smoothing
	d.smoothed = d.smoothed*(1-s) + level*s

	if d.smoothed > d.cfg.Threshold {
		d.belowSince = time.Time{}
		if d.aboveSince.IsZero() {
			d.aboveSince = now
		}
		if !d.speaking && now.Sub(d.aboveSince) >= d.cfg.Debounce {
			d.speaking = true
			return true, true
		}
		return d.speaking, false
	}

	d.aboveSince = time.Time{}
	if d.belowSince.IsZero() {
		d.belowSince = now
	}
	if d.speaking && now.Sub(d.belowSince) >= d.cfg.Hold {
		d.speaking = false
		return false, true
	}
	return d.speaking, false
}

func (d *Detector) Reset() {
	d.smoothed = 0
	d.speaking = false
	d.aboveSince = time.Time{}
	d.belowSince = time.Time{}
}

func (d *Detector) Speaking() bool    { return d.speaking }
func (d *Detector) Smoothed() float64 { return d.smoothed }
func (d *Detector) Config() Config    { return d.cfg }

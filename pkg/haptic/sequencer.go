// pkg/haptic/sequencer.go
// Copyright(c) 2024-2026 Echo-Map contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package haptic

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Milad9A/Echo-Map-sub001/pkg/log"
)

var ErrUnknownPattern = errors.New("Unknown haptic pattern")

// Output is the vibration capability the sequencer drives. Vibrate
// blocks for the duration of the pulse and must return early if the
// context is canceled.
type Output interface {
	Vibrate(ctx context.Context, d time.Duration, intensity float64) error
}

type SequencerConfig struct {
	// MinIntensity/MaxIntensity bound the user-selectable playback
	// intensity.
	MinIntensity float64
	MaxIntensity float64
}

func DefaultSequencerConfig() SequencerConfig {
	return SequencerConfig{MinIntensity: 0.2, MaxIntensity: 1}
}

// Sequencer plays named vibration patterns on an Output. At most one
// pattern is ever active; starting a new one cancels any in-progress
// playback within one pulse boundary. A nil Output degrades gracefully:
// playback is timed as usual so callers observe the same sequencing, it
// just doesn't buzz.
type Sequencer struct {
	out Output
	cfg SequencerConfig
	lg  *log.Logger

	mu         sync.Mutex
	cancel     context.CancelFunc
	active     string
	generation int
	wg         sync.WaitGroup

	warnedNoOutput bool
}

func NewSequencer(out Output, cfg SequencerConfig, lg *log.Logger) *Sequencer {
	return &Sequencer{out: out, cfg: cfg, lg: lg}
}

// Play starts the named pattern at the given intensity, preempting any
// pattern currently playing. Intensity is clamped to the configured
// range and then to the pattern's floor, if it has one.
func (s *Sequencer) Play(name string, intensity float64) error {
	pat, ok := Lookup(name)
	if !ok {
		return ErrUnknownPattern
	}

	intensity = min(max(intensity, s.cfg.MinIntensity), s.cfg.MaxIntensity)
	if floor, ok := floorIntensity[name]; ok && intensity < floor {
		intensity = floor
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.active = name
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	s.lg.Debug("playing haptic pattern", slog.String("pattern", name),
		slog.Float64("intensity", intensity))

	s.wg.Add(1)
	go s.run(ctx, gen, pat, intensity)
	return nil
}

func (s *Sequencer) run(ctx context.Context, gen int, pat Pattern, intensity float64) {
	defer s.wg.Done()

	for _, seg := range pat.Segments {
		if ctx.Err() != nil {
			break
		}

		if s.out != nil {
			if err := s.out.Vibrate(ctx, seg.Pulse, intensity*seg.Intensity); err != nil {
				// No vibration hardware isn't fatal; the semantic
				// events still reach observers for audio/UI fallback.
				s.mu.Lock()
				warned := s.warnedNoOutput
				s.warnedNoOutput = true
				s.mu.Unlock()
				if !warned {
					s.lg.Warnf("vibration output failed, continuing silently: %v", err)
				}
			}
		} else {
			select {
			case <-ctx.Done():
			case <-time.After(seg.Pulse):
			}
		}

		if seg.Pause > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(seg.Pause):
			}
		}
	}

	s.mu.Lock()
	// Only clear the active pattern if we weren't preempted.
	if s.generation == gen {
		s.active = ""
		s.cancel = nil
	}
	s.mu.Unlock()
}

// Stop cancels any in-progress playback; afterwards no pattern is
// active.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.active = ""
	s.generation++
	s.mu.Unlock()
}

// Active returns the name of the pattern currently playing, or "".
func (s *Sequencer) Active() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Wait blocks until any in-flight playback goroutine has exited; used
// when tearing down a session so that stop leaks nothing.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

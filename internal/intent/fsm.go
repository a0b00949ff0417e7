// Package intent owns the per-hand stabilisation state machine.
//
// The FSM is the multi-layer defence between the noisy per-frame classifier
// and the pointer consumer: Schmitt-trigger hysteresis (layer 1), a strict
// transition graph (layer 2), independent per-target leaky dwell buckets
// (layer 3), and a coast/timeout subsystem bridging transient signal loss.
//
// The single load-bearing safety property is Anti-Midas: no sequence of
// frames can take a hand from IDLE to COMMIT_POINTER without first dwelling
// through READY. The property is structural — the transition table simply
// has no such edge — not a runtime check.
package intent

import (
	"fmt"

	"github.com/handwave-data/handwave/internal/hand"
)

// State is the FSM position. Latched states require accumulated evidence
// to enter and never self-exit on a timer; each has a transient coast
// shadow entered on signal loss and bounded by the coast timeout.
type State string

const (
	StateIdle        State = "idle"
	StateIdleCoast   State = "idle_coast"
	StateReady       State = "ready"
	StateReadyCoast  State = "ready_coast"
	StateCommit      State = "commit_pointer"
	StateCommitCoast State = "commit_coast"
)

// Config holds the FSM tunables. All dwell quantities are milliseconds so
// behaviour is frame-rate independent.
type Config struct {
	// ConfHigh arms transitions; ConfLow disarms into coast. Two
	// thresholds (Schmitt trigger) prevent toggling when confidence
	// hovers near a single cut-off.
	ConfHigh float64
	ConfLow  float64

	// Dwell limits per transition target.
	DwellReadyMs  float64 // IDLE → READY on sustained open_palm
	DwellCommitMs float64 // READY → COMMIT_POINTER on sustained pointer_up
	DwellIdleMs   float64 // COMMIT_POINTER → IDLE on sustained closed_fist

	// CoastTimeoutMs bounds any coast state; on expiry the FSM resets
	// unconditionally to IDLE, even from COMMIT_COAST.
	CoastTimeoutMs float64

	// MildLeakRatio drains buckets on off-path frames that carry no
	// opposing evidence. OpposingLeakRatio drains the sibling bucket
	// when a competing exit gesture accumulates. The source design left
	// both at 2.0; they are kept as independent knobs rather than
	// assumed equal.
	MildLeakRatio     float64
	OpposingLeakRatio float64
}

// Nominal frame interval used to express the frame-count dwell defaults
// (READY=5 frames, COMMIT=3, IDLE=4) in milliseconds.
const nominalFrameMs = 33.0

// DefaultConfig returns the production-default FSM tuning.
func DefaultConfig() Config {
	return Config{
		ConfHigh:          0.60,
		ConfLow:           0.40,
		DwellReadyMs:      5 * nominalFrameMs,
		DwellCommitMs:     3 * nominalFrameMs,
		DwellIdleMs:       4 * nominalFrameMs,
		CoastTimeoutMs:    500,
		MildLeakRatio:     2.0,
		OpposingLeakRatio: 2.0,
	}
}

// Validate fails fast on configuration that would make the FSM
// meaningless. Called at configuration time, never on the frame path.
func (c Config) Validate() error {
	if c.ConfLow >= c.ConfHigh {
		return fmt.Errorf("conf_low (%.2f) must be below conf_high (%.2f)", c.ConfLow, c.ConfHigh)
	}
	if c.ConfLow < 0 || c.ConfHigh > 1 {
		return fmt.Errorf("confidence thresholds must lie in [0,1], got low=%.2f high=%.2f", c.ConfLow, c.ConfHigh)
	}
	if c.DwellReadyMs <= 0 || c.DwellCommitMs <= 0 || c.DwellIdleMs <= 0 {
		return fmt.Errorf("dwell limits must be positive, got ready=%.1f commit=%.1f idle=%.1f",
			c.DwellReadyMs, c.DwellCommitMs, c.DwellIdleMs)
	}
	if c.CoastTimeoutMs <= 0 {
		return fmt.Errorf("coast timeout must be positive, got %.1f", c.CoastTimeoutMs)
	}
	if c.MildLeakRatio < 0 || c.OpposingLeakRatio < 0 {
		return fmt.Errorf("leak ratios must be non-negative, got mild=%.1f opposing=%.1f",
			c.MildLeakRatio, c.OpposingLeakRatio)
	}
	return nil
}

// dwellLimit returns the dwell limit for entering the given target state.
func (c Config) dwellLimit(target State) float64 {
	switch target {
	case StateReady:
		return c.DwellReadyMs
	case StateCommit:
		return c.DwellCommitMs
	default:
		return c.DwellIdleMs
	}
}

// transitions is the strict transition graph: from each latched state,
// only the listed high-confidence gestures feed a dwell bucket toward the
// mapped target; everything else is a leak event.
//
// There is deliberately no entry taking StateIdle to StateCommit under any
// gesture — COMMIT_POINTER is reachable only through READY.
var transitions = map[State]map[hand.Gesture]State{
	StateIdle: {
		hand.GestureOpenPalm: StateReady,
	},
	StateReady: {
		hand.GesturePointerUp: StateCommit,
	},
	StateCommit: {
		hand.GestureOpenPalm:   StateReady,
		hand.GestureClosedFist: StateIdle,
	},
}

// LegalTargets returns a copy of the dwell-gated transition edges out of
// a latched state. Read-only view of the transition graph for tooling
// and structural tests.
func LegalTargets(s State) map[hand.Gesture]State {
	out := make(map[hand.Gesture]State, len(transitions[s]))
	for g, target := range transitions[s] {
		out[g] = target
	}
	return out
}

var coastOf = map[State]State{
	StateIdle:   StateIdleCoast,
	StateReady:  StateReadyCoast,
	StateCommit: StateCommitCoast,
}

var latchedOf = map[State]State{
	StateIdleCoast:   StateIdle,
	StateReadyCoast:  StateReady,
	StateCommitCoast: StateCommit,
}

// Snapshot is a read-only copy of the FSM internals, for metrics, the
// session recorder, and tests.
type Snapshot struct {
	State          State
	CoastElapsedMs float64
	LastConfidence float64
	LastFrameMs    float64
	Buckets        map[State]float64
}

// FSM stabilises one hand's gesture stream. Exactly one instance exists
// per tracked hand identity, and only that hand's frames touch it; the
// engine's hand table owns instance lifecycle.
type FSM struct {
	cfg Config

	state          State
	buckets        map[State]float64
	coastElapsedMs float64
	lastConfidence float64
	lastFrameMs    float64
	started        bool
}

// New creates an FSM in StateIdle. The config must already be validated;
// invalid tuning is a programmer error caught at configuration time.
func New(cfg Config) *FSM {
	return &FSM{
		cfg:     cfg,
		state:   StateIdle,
		buckets: make(map[State]float64, 3),
	}
}

// SetConfig swaps the tuning without disturbing in-flight state. The new
// values apply from the next ProcessFrame call.
func (f *FSM) SetConfig(cfg Config) {
	f.cfg = cfg
}

// State returns the current FSM state.
func (f *FSM) State() State { return f.state }

// IsPinching reports whether the hand is committed to pointer contact.
// Deliberately true during COMMIT_COAST so a momentary occlusion does not
// break an in-progress drag; callers taking positions during a coast must
// route them through the teleport guard.
func (f *FSM) IsPinching() bool {
	return f.state == StateCommit || f.state == StateCommitCoast
}

// IsCoasting reports whether the hand is in any transient coast state.
func (f *FSM) IsCoasting() bool {
	_, ok := latchedOf[f.state]
	return ok
}

// ForceCoast demotes a latched state to its coast shadow. Idempotent:
// calling it while already coasting is a no-op.
func (f *FSM) ForceCoast() {
	if shadow, ok := coastOf[f.state]; ok {
		f.state = shadow
		f.coastElapsedMs = 0
	}
}

// Snapshot returns a copy of the FSM internals.
func (f *FSM) Snapshot() Snapshot {
	buckets := make(map[State]float64, len(f.buckets))
	for target, ms := range f.buckets {
		buckets[target] = ms
	}
	return Snapshot{
		State:          f.state,
		CoastElapsedMs: f.coastElapsedMs,
		LastConfidence: f.lastConfidence,
		LastFrameMs:    f.lastFrameMs,
		Buckets:        buckets,
	}
}

// ProcessFrame advances the FSM by one sensor sample. nowMs must be
// monotonic; the first call establishes the time baseline and accumulates
// nothing. Position is not used by the FSM itself (the teleport guard
// owns position plausibility) but is part of the frame contract.
func (f *FSM) ProcessFrame(gesture hand.Gesture, confidence, x, y, nowMs float64) {
	var deltaMs float64
	if f.started {
		deltaMs = nowMs - f.lastFrameMs
		if deltaMs < 0 {
			deltaMs = 0
		}
	}
	f.started = true
	f.lastFrameMs = nowMs
	f.lastConfidence = confidence

	if f.IsCoasting() {
		f.coastElapsedMs += deltaMs
		if f.coastElapsedMs >= f.cfg.CoastTimeoutMs {
			// Total signal loss for the full timeout must never
			// leave a stale "still pinching" state: reset to IDLE
			// unconditionally, even from COMMIT_COAST.
			f.state = StateIdle
			f.zeroBuckets()
			f.coastElapsedMs = 0
			return
		}
		if confidence < f.cfg.ConfHigh {
			return
		}
		// Snaplock: promote back to the latched state and resume
		// bucket evaluation in this same frame.
		f.state = latchedOf[f.state]
		f.coastElapsedMs = 0
	}

	// Layer 1: coast entry is a hard override checked before anything
	// else, every frame.
	if gesture == hand.GestureNone || confidence < f.cfg.ConfLow {
		f.state = coastOf[f.state]
		f.coastElapsedMs = 0
		return
	}

	// Hysteresis dead band: evidence between the thresholds neither
	// advances nor coasts. Buckets leak rather than reset so a blip
	// cannot discard seconds of accumulated intent.
	if confidence < f.cfg.ConfHigh {
		f.leakAll(deltaMs, f.cfg.MildLeakRatio)
		return
	}

	// High-confidence closed_fist is special-cased outside the dwell
	// graph: in IDLE it resets the baseline, in READY it aborts back to
	// IDLE immediately, with no dwell.
	if gesture == hand.GestureClosedFist {
		switch f.state {
		case StateIdle:
			f.zeroBuckets()
			return
		case StateReady:
			f.transition(StateIdle)
			return
		}
	}

	target, qualifies := transitions[f.state][gesture]
	if !qualifies {
		f.leakAll(deltaMs, f.cfg.MildLeakRatio)
		return
	}

	// Layer 3: feed the target's own bucket; competing exit buckets
	// drain aggressively so a flicker between two exit gestures cannot
	// spuriously sum.
	f.buckets[target] += deltaMs
	for other := range f.buckets {
		if other != target {
			f.buckets[other] = floorZero(f.buckets[other] - f.cfg.OpposingLeakRatio*deltaMs)
		}
	}

	if f.buckets[target] >= f.cfg.dwellLimit(target) {
		f.transition(target)
	}
}

// transition latches the new state and zeroes every bucket, so residual
// accumulation cannot double-fire a second transition next frame.
func (f *FSM) transition(target State) {
	f.state = target
	f.zeroBuckets()
}

func (f *FSM) zeroBuckets() {
	for target := range f.buckets {
		delete(f.buckets, target)
	}
}

func (f *FSM) leakAll(deltaMs, ratio float64) {
	for target := range f.buckets {
		f.buckets[target] = floorZero(f.buckets[target] - ratio*deltaMs)
	}
}

func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// Package arbiter enforces a single-owner mutex over simultaneously
// tracked hands, so only one hand at a time drives the shared pointer
// output no matter how many the sensor reports.
package arbiter

import (
	"fmt"

	"github.com/handwave-data/handwave/internal/hand"
)

// Policy selects the lock acquisition rule.
type Policy string

const (
	// LockOnSight: the first hand seen with no current owner acquires
	// the lock immediately; every other hand is filtered out until the
	// owner disappears from the frame.
	LockOnSight Policy = "lock_on_sight"
	// LockOnCommitOnly: hovering hands pass through (for visualisation)
	// and the lock is acquired only the instant a hand presents the
	// committing gesture; once held, other hands are filtered.
	LockOnCommitOnly Policy = "lock_on_commit"
)

// NoOwner is the sentinel returned by ActiveHandID when no hand holds
// the lock. Sensor hand identities are non-negative.
const NoOwner = -1

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case LockOnSight:
		return LockOnSight, nil
	case LockOnCommitOnly:
		return LockOnCommitOnly, nil
	default:
		return "", fmt.Errorf("unknown arbitration policy %q", s)
	}
}

// Config holds the arbitrator tunables.
type Config struct {
	Policy Policy
	// DropHoverEvents suppresses non-committing frames from the output
	// entirely, independent of which locking policy is active.
	DropHoverEvents bool
	// ConfHigh gates what counts as presenting the committing gesture;
	// shared with the FSM's arming threshold.
	ConfHigh float64
}

// Arbitrator is the single-writer lock structure. It is mutated only
// inside Filter, once per synchronous frame pass.
type Arbitrator struct {
	cfg   Config
	owner int

	// pinching reports whether a hand's FSM is committed (including
	// commit-coast). A coasting drag presents gesture "none" for a few
	// frames; without this hook DropHoverEvents would cut the stream
	// mid-drag.
	pinching func(handID int) bool
}

// New creates an Arbitrator with no owner. pinching may be nil, in which
// case only the raw frame gesture is consulted.
func New(cfg Config, pinching func(handID int) bool) *Arbitrator {
	return &Arbitrator{cfg: cfg, owner: NoOwner, pinching: pinching}
}

// SetConfig swaps tuning; a policy change applies from the next frame
// without dropping the current owner.
func (a *Arbitrator) SetConfig(cfg Config) {
	a.cfg = cfg
}

// ActiveHandID returns the current lock owner, or NoOwner.
func (a *Arbitrator) ActiveHandID() int { return a.owner }

// Filter decides which hands' frames are allowed through this frame.
// Acquisition ties are broken by lowest hand ID, so the outcome is
// reproducible regardless of sensor enumeration order.
func (a *Arbitrator) Filter(frames []hand.Frame) []hand.Frame {
	// Release: the owner's input disappeared.
	if a.owner != NoOwner && !contains(frames, a.owner) {
		a.owner = NoOwner
	}

	if a.owner == NoOwner {
		a.acquire(frames)
	}

	out := make([]hand.Frame, 0, len(frames))
	for _, f := range frames {
		if a.cfg.DropHoverEvents && !a.committing(f) {
			continue
		}
		switch a.cfg.Policy {
		case LockOnCommitOnly:
			// Hovering hands pass through; only a held lock
			// excludes the others.
			if a.owner != NoOwner && f.HandID != a.owner {
				continue
			}
		default: // LockOnSight
			if f.HandID != a.owner {
				continue
			}
		}
		out = append(out, f)
	}
	return out
}

func (a *Arbitrator) acquire(frames []hand.Frame) {
	best := NoOwner
	for _, f := range frames {
		if a.cfg.Policy == LockOnCommitOnly && !a.committing(f) {
			continue
		}
		if best == NoOwner || f.HandID < best {
			best = f.HandID
		}
	}
	a.owner = best
}

// committing reports whether the frame presents the gesture that starts
// a commit at arming confidence, or belongs to a hand whose FSM is
// already committed.
func (a *Arbitrator) committing(f hand.Frame) bool {
	if f.Gesture == hand.GesturePointerUp && f.Confidence >= a.cfg.ConfHigh {
		return true
	}
	return a.pinching != nil && a.pinching(f.HandID)
}

func contains(frames []hand.Frame, handID int) bool {
	for _, f := range frames {
		if f.HandID == handID {
			return true
		}
	}
	return false
}

// Package guard prevents ghost strokes on coast recovery.
//
// While a committed hand coasts through a tracking dropout, IsPinching
// stays true so the drag survives the blip. If the hand resurfaces far
// from where it vanished, forwarding the recovery frame as-is would drag
// the stroke across the screen. The guard remembers the last coasting
// position and, when the recovery jump is implausibly large, injects a
// synthetic release at the anchor before the real event.
package guard

// DefaultTeleportThresholdSq is the default squared-distance trigger in
// normalised screen units: 0.15² ≈ a 15% viewport jump.
const DefaultTeleportThresholdSq = 0.0225

// Anchor is the last known position recorded while a hand coasted in a
// committed state.
type Anchor struct {
	HandID int
	X, Y   float64
}

// Emission is one pointer record leaving the guard. Synthetic emissions
// are corrective releases at the anchor position, not hand observations.
type Emission struct {
	X, Y       float64
	IsPinching bool
	Synthetic  bool
}

// handMotion is the per-hand state carried between frames.
type handMotion struct {
	pinching bool
	coasting bool
	x, y     float64 // last known position (detection frames only)
	seen     bool    // at least one detection frame observed
}

// Guard tracks commit-coast anchors across hands. Single-writer: mutated
// only inside the synchronous frame pass.
type Guard struct {
	thresholdSq float64
	anchors     map[int]Anchor
	prev        map[int]handMotion
}

// New creates a Guard. A non-positive threshold falls back to the default.
func New(thresholdSq float64) *Guard {
	if thresholdSq <= 0 {
		thresholdSq = DefaultTeleportThresholdSq
	}
	return &Guard{
		thresholdSq: thresholdSq,
		anchors:     make(map[int]Anchor),
		prev:        make(map[int]handMotion),
	}
}

// SetThresholdSq swaps the squared-distance trigger; applies next frame.
func (g *Guard) SetThresholdSq(thresholdSq float64) {
	if thresholdSq > 0 {
		g.thresholdSq = thresholdSq
	}
}

// AnchorFor returns the live coast anchor for a hand, if any. Exposed for
// overlay consumers and tests.
func (g *Guard) AnchorFor(handID int) (Anchor, bool) {
	a, ok := g.anchors[handID]
	return a, ok
}

// Observe inspects one hand's post-FSM motion state and returns the
// emissions to forward, in order. hasPosition is false for synthetic
// loss frames, whose coordinates carry no detection; the guard then
// holds the pointer at the hand's last known position.
//
// On the exact transition commit-coast → commit-latched with an
// over-threshold position jump, the first emission is a synthetic
// release at the anchor; the real event always follows.
func (g *Guard) Observe(handID int, isPinching, isCoasting, hasPosition bool, x, y float64) []Emission {
	was := g.prev[handID]

	cur := handMotion{pinching: isPinching, coasting: isCoasting, x: was.x, y: was.y, seen: was.seen}
	if hasPosition {
		cur.x, cur.y = x, y
		cur.seen = true
	}
	g.prev[handID] = cur

	real := Emission{X: cur.x, Y: cur.y, IsPinching: isPinching}

	if isPinching && isCoasting {
		// Refresh the anchor every coasting frame so recovery is
		// judged against the last plausible position. Coasting
		// frames still forward; consumers may freeze or fade the
		// pointer as they see fit.
		if cur.seen {
			g.anchors[handID] = Anchor{HandID: handID, X: cur.x, Y: cur.y}
		}
		return []Emission{real}
	}

	anchor, hadAnchor := g.anchors[handID]
	// Leaving COMMIT_COAST clears the anchor whatever the destination.
	delete(g.anchors, handID)

	recovered := was.pinching && was.coasting && isPinching && !isCoasting
	if recovered && hadAnchor {
		dx, dy := x-anchor.X, y-anchor.Y
		if dx*dx+dy*dy > g.thresholdSq {
			release := Emission{X: anchor.X, Y: anchor.Y, IsPinching: false, Synthetic: true}
			return []Emission{release, real}
		}
	}
	return []Emission{real}
}

// Forget drops all guard state for a retired hand identity.
func (g *Guard) Forget(handID int) {
	delete(g.prev, handID)
	delete(g.anchors, handID)
}

package arbiter_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/handwave-data/handwave/internal/arbiter"
	"github.com/handwave-data/handwave/internal/hand"
)

func frame(handID int, g hand.Gesture, conf float64) hand.Frame {
	return hand.Frame{HandID: handID, Gesture: g, Confidence: conf}
}

func handIDs(frames []hand.Frame) []int {
	ids := make([]int, 0, len(frames))
	for _, f := range frames {
		ids = append(ids, f.HandID)
	}
	return ids
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := arbiter.ParsePolicy("lock_on_sight")
	require.NoError(t, err)
	assert.Equal(t, arbiter.LockOnSight, p)

	p, err = arbiter.ParsePolicy("lock_on_commit")
	require.NoError(t, err)
	assert.Equal(t, arbiter.LockOnCommitOnly, p)

	_, err = arbiter.ParsePolicy("first_come")
	assert.Error(t, err)
}

func TestLockOnSight(t *testing.T) {
	t.Parallel()

	t.Run("ties break to the lowest hand id", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnSight, ConfHigh: 0.6}, nil)
		out := a.Filter([]hand.Frame{
			frame(2, hand.GestureOpenPalm, 0.9),
			frame(0, hand.GestureOpenPalm, 0.9),
			frame(1, hand.GestureOpenPalm, 0.9),
		})
		assert.Equal(t, 0, a.ActiveHandID())
		assert.Equal(t, []int{0}, handIDs(out))
	})

	t.Run("owner holds against later hands", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnSight, ConfHigh: 0.6}, nil)
		a.Filter([]hand.Frame{frame(3, hand.GestureOpenPalm, 0.9)})
		require.Equal(t, 3, a.ActiveHandID())

		// A lower-id hand arriving later must not steal the lock.
		out := a.Filter([]hand.Frame{
			frame(0, hand.GesturePointerUp, 0.9),
			frame(3, hand.GestureOpenPalm, 0.9),
		})
		assert.Equal(t, 3, a.ActiveHandID())
		assert.Equal(t, []int{3}, handIDs(out))
	})

	t.Run("releases when the owner disappears", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnSight, ConfHigh: 0.6}, nil)
		a.Filter([]hand.Frame{frame(0, hand.GestureOpenPalm, 0.9)})
		require.Equal(t, 0, a.ActiveHandID())

		// Same pass: release and reacquisition happen together, so the
		// surviving hand takes over without a dead frame.
		out := a.Filter([]hand.Frame{frame(1, hand.GestureOpenPalm, 0.9)})
		assert.Equal(t, 1, a.ActiveHandID())
		assert.Equal(t, []int{1}, handIDs(out))

		a.Filter(nil)
		assert.Equal(t, arbiter.NoOwner, a.ActiveHandID())
	})
}

func TestLockOnCommitOnly(t *testing.T) {
	t.Parallel()

	t.Run("hovering hands pass through unlocked", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnCommitOnly, ConfHigh: 0.6}, nil)
		out := a.Filter([]hand.Frame{
			frame(0, hand.GestureOpenPalm, 0.9),
			frame(1, hand.GestureOpenPalm, 0.9),
		})
		assert.Equal(t, arbiter.NoOwner, a.ActiveHandID())
		assert.Equal(t, []int{0, 1}, handIDs(out))
	})

	t.Run("lock taken on the committing gesture", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnCommitOnly, ConfHigh: 0.6}, nil)
		out := a.Filter([]hand.Frame{
			frame(0, hand.GestureOpenPalm, 0.9),
			frame(1, hand.GesturePointerUp, 0.9),
		})
		assert.Equal(t, 1, a.ActiveHandID())
		assert.Equal(t, []int{1}, handIDs(out), "held lock excludes the hovering hand")
	})

	t.Run("sub-threshold pointer does not acquire", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnCommitOnly, ConfHigh: 0.6}, nil)
		a.Filter([]hand.Frame{frame(0, hand.GesturePointerUp, 0.5)})
		assert.Equal(t, arbiter.NoOwner, a.ActiveHandID())
	})

	t.Run("coasting drag keeps the lock through the pinching hook", func(t *testing.T) {
		t.Parallel()
		pinching := map[int]bool{0: true}
		a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnCommitOnly, ConfHigh: 0.6},
			func(handID int) bool { return pinching[handID] })

		// Mid-drag occlusion: the frame gesture degrades to none but the
		// hand's machine is still committed.
		out := a.Filter([]hand.Frame{frame(0, hand.GestureNone, 0)})
		assert.Equal(t, 0, a.ActiveHandID())
		assert.Equal(t, []int{0}, handIDs(out))
	})
}

func TestDropHoverEvents(t *testing.T) {
	t.Parallel()

	t.Run("suppresses non-committing frames under either policy", func(t *testing.T) {
		t.Parallel()
		for _, policy := range []arbiter.Policy{arbiter.LockOnSight, arbiter.LockOnCommitOnly} {
			a := arbiter.New(arbiter.Config{Policy: policy, DropHoverEvents: true, ConfHigh: 0.6}, nil)
			out := a.Filter([]hand.Frame{frame(0, hand.GestureOpenPalm, 0.9)})
			assert.Empty(t, out, "policy %s leaked a hover frame", policy)
		}
	})

	t.Run("committing frames still flow", func(t *testing.T) {
		t.Parallel()
		a := arbiter.New(arbiter.Config{
			Policy: arbiter.LockOnSight, DropHoverEvents: true, ConfHigh: 0.6,
		}, nil)
		a.Filter([]hand.Frame{frame(0, hand.GestureOpenPalm, 0.9)})
		out := a.Filter([]hand.Frame{frame(0, hand.GesturePointerUp, 0.9)})
		assert.Equal(t, []int{0}, handIDs(out))
	})
}

func TestSetConfigKeepsOwner(t *testing.T) {
	t.Parallel()
	a := arbiter.New(arbiter.Config{Policy: arbiter.LockOnSight, ConfHigh: 0.6}, nil)
	a.Filter([]hand.Frame{frame(2, hand.GestureOpenPalm, 0.9)})
	require.Equal(t, 2, a.ActiveHandID())

	a.SetConfig(arbiter.Config{Policy: arbiter.LockOnCommitOnly, ConfHigh: 0.6})
	assert.Equal(t, 2, a.ActiveHandID(), "policy swap must not drop the lock")
}

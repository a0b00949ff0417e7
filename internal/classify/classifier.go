// Package classify scores raw hand geometry into a gesture and confidence.
//
// The classifier is deliberately stateless: identical landmark input yields
// bit-identical output, with no memory between frames. All temporal
// smoothing lives downstream in the intent FSM.
package classify

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/handwave-data/handwave/internal/hand"
)

// ScoreFloor is the minimum composite score a gesture must reach to win
// classification. Sub-floor or tied scores fall back to the open-palm
// baseline.
const ScoreFloor = 0.6

// curlGain maps finger straightness loss onto the [0,1] curl range.
// A fully straight finger has straightness ≈ 1.0; a fully curled finger
// bottoms out near 0.6, so a gain of 2.5 saturates the curl score there.
const curlGain = 2.5

// minPalmWidth rejects degenerate geometry where the index and pinky MCP
// landmarks have collapsed onto each other (normalised camera units).
const minPalmWidth = 1e-3

// Composite score weights. Each composite is a convex combination of the
// curl scores, the inverse curls, and the thumb-brace term.
const (
	openExtWeight        = 0.85
	openThumbFreeWeight  = 0.15
	fistCurlWeight       = 0.80
	fistBraceWeight      = 0.20
	pointerIndexWeight   = 0.45
	pointerCurlMRPWeight = 0.35
	pointerBraceWeight   = 0.20
)

// Params holds the classifier tunables.
type Params struct {
	// OverscanScale expands the usable camera area so a border of the
	// frame still maps onto the full [0,1] screen range. 1.0 disables
	// the remap.
	OverscanScale float64

	// BraceScale scales the palm-width-normalised thumb-brace distance.
	// The brace contact point (thumb tip to middle-finger PIP) is a
	// first-order proxy for the anatomical contact, and the palm-width
	// ruler foreshortens under >45° hand rotation; both are accepted
	// approximations, tunable here rather than silently corrected.
	BraceScale float64
}

// DefaultParams returns production-default classifier parameters.
func DefaultParams() Params {
	return Params{
		OverscanScale: 1.25,
		BraceScale:    1.0,
	}
}

// Classifier converts 21-point landmark sets into classified frames.
type Classifier struct {
	params Params
}

// New creates a Classifier with the given parameters.
func New(params Params) *Classifier {
	if params.OverscanScale <= 0 {
		params.OverscanScale = 1.0
	}
	if params.BraceScale <= 0 {
		params.BraceScale = DefaultParams().BraceScale
	}
	return &Classifier{params: params}
}

// SetParams replaces the classifier tunables. Takes effect on the next
// Classify call; there is no in-flight state to migrate.
func (c *Classifier) SetParams(params Params) {
	if params.OverscanScale <= 0 {
		params.OverscanScale = 1.0
	}
	if params.BraceScale <= 0 {
		params.BraceScale = DefaultParams().BraceScale
	}
	c.params = params
}

// Classify scores one landmark set. The returned frame carries gesture,
// confidence and the mirrored, overscan-remapped pointer position; the
// caller fills HandID, TimestampMs and RawLandmarks.
//
// Malformed input (non-finite coordinates, collapsed palm) degrades to a
// none/0 frame rather than an error: one corrupted sample must never end
// a multi-minute tracking session.
func (c *Classifier) Classify(lm hand.Landmarks) hand.Frame {
	if !lm.Valid() {
		return hand.Frame{Gesture: hand.GestureNone, Confidence: 0}
	}

	// Palm-width baseline: the ruler every other distance is divided by.
	// This is what makes the scores resilient to hand size and camera
	// distance.
	palmWidth := dist(lm[hand.IndexMCP], lm[hand.PinkyMCP])
	if palmWidth < minPalmWidth {
		return hand.Frame{Gesture: hand.GestureNone, Confidence: 0}
	}

	curlIndex := fingerCurl(lm[hand.IndexMCP], lm[hand.IndexPIP], lm[hand.IndexTip])
	curlMiddle := fingerCurl(lm[hand.MiddleMCP], lm[hand.MiddlePIP], lm[hand.MiddleTip])
	curlRing := fingerCurl(lm[hand.RingMCP], lm[hand.RingPIP], lm[hand.RingTip])
	curlPinky := fingerCurl(lm[hand.PinkyMCP], lm[hand.PinkyPIP], lm[hand.PinkyTip])

	avgCurl := (curlIndex + curlMiddle + curlRing + curlPinky) / 4
	curlMRP := (curlMiddle + curlRing + curlPinky) / 3

	// Thumb brace: how close the thumb tip sits to the middle-finger
	// proximal joint, normalised by palm width, inverted so that a
	// braced thumb scores 1.
	braceDist := dist(lm[hand.ThumbTip], lm[hand.MiddlePIP])
	thumbBrace := clamp01(1 - braceDist/(palmWidth*c.params.BraceScale))

	openScore := openExtWeight*(1-avgCurl) + openThumbFreeWeight*(1-thumbBrace)
	fistScore := fistCurlWeight*avgCurl + fistBraceWeight*thumbBrace
	pointerScore := pointerIndexWeight*(1-curlIndex) + pointerCurlMRPWeight*curlMRP + pointerBraceWeight*thumbBrace

	gesture := hand.GestureOpenPalm
	confidence := openScore
	switch {
	case pointerScore >= ScoreFloor && pointerScore > fistScore && pointerScore > openScore:
		gesture = hand.GesturePointerUp
		confidence = pointerScore
	case fistScore >= ScoreFloor && fistScore > pointerScore && fistScore > openScore:
		gesture = hand.GestureClosedFist
		confidence = fistScore
	}

	// Mirror here and nowhere else: the camera faces the user, so
	// screen-space X runs opposite to camera-space X. This is the single
	// non-repeatable mirror in the whole pipeline.
	tip := lm[hand.IndexTip]
	x := c.overscan(1 - tip.X)
	y := c.overscan(tip.Y)

	return hand.Frame{
		Gesture:    gesture,
		Confidence: clamp01(confidence),
		X:          x,
		Y:          y,
	}
}

// overscan applies the affine remap (coord - offset) * scale with
// offset = (1 - 1/scale) / 2, so a centred 1/scale window of the camera
// frame maps onto the full [0,1] screen range.
func (c *Classifier) overscan(coord float64) float64 {
	scale := c.params.OverscanScale
	offset := (1 - 1/scale) / 2
	return clamp01((coord - offset) * scale)
}

// fingerCurl scores one finger's deviation from straightness on [0,1].
// Straightness is the ratio of the direct MCP→TIP distance to the summed
// MCP→PIP→TIP segment lengths: 1.0 for a straight finger, shrinking as
// the finger folds.
func fingerCurl(mcp, pip, tip hand.Landmark) float64 {
	segments := dist(mcp, pip) + dist(pip, tip)
	if segments < minPalmWidth {
		return 0
	}
	straightness := dist(mcp, tip) / segments
	return clamp01((1 - straightness) * curlGain)
}

func dist(a, b hand.Landmark) float64 {
	return r3.Norm(r3.Sub(
		r3.Vec{X: a.X, Y: a.Y, Z: a.Z},
		r3.Vec{X: b.X, Y: b.Y, Z: b.Z},
	))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

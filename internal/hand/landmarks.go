package hand

import (
	"fmt"
	"math"
)

// LandmarkCount is the number of landmarks a single tracked hand carries.
// The layout follows the standard 21-point hand topology: wrist, then four
// joints per digit from thumb to pinky.
const LandmarkCount = 21

// Named landmark indices. Any 21-point hand-landmark source that satisfies
// this indexing is substitutable; the classifier depends on nothing else.
const (
	Wrist = 0

	ThumbCMC = 1
	ThumbMCP = 2
	ThumbIP  = 3
	ThumbTip = 4

	IndexMCP = 5
	IndexPIP = 6
	IndexDIP = 7
	IndexTip = 8

	MiddleMCP = 9
	MiddlePIP = 10
	MiddleDIP = 11
	MiddleTip = 12

	RingMCP = 13
	RingPIP = 14
	RingDIP = 15
	RingTip = 16

	PinkyMCP = 17
	PinkyPIP = 18
	PinkyDIP = 19
	PinkyTip = 20
)

// Landmark is one hand keypoint in unmirrored camera space.
// X and Y are normalised to [0,1]; Z is a relative depth estimate
// (negative towards the camera, same scale as X).
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Landmarks is a fixed-size set of 21 hand keypoints. Using an array type
// rather than a slice makes a short or over-long frame unrepresentable and
// turns off-by-one landmark references into compile-time index errors.
type Landmarks [LandmarkCount]Landmark

// LandmarksFromSlice converts a raw sensor slice into a Landmarks array.
// A slice of the wrong length is a malformed frame and returns an error;
// callers on the frame path degrade it to a no-detection frame rather
// than aborting the session.
func LandmarksFromSlice(points []Landmark) (Landmarks, error) {
	var lm Landmarks
	if len(points) != LandmarkCount {
		return lm, fmt.Errorf("landmark frame has %d points, want %d", len(points), LandmarkCount)
	}
	copy(lm[:], points)
	return lm, nil
}

// Valid reports whether every coordinate in the set is finite.
// A single NaN propagates through every distance and curl computation,
// so one bad coordinate poisons the whole classification.
func (lm *Landmarks) Valid() bool {
	for i := range lm {
		if !isFinite(lm[i].X) || !isFinite(lm[i].Y) || !isFinite(lm[i].Z) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

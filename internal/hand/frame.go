package hand

// Gesture is the discrete hand pose reported by the classifier.
type Gesture string

const (
	// GestureNone means no usable detection this frame (tracking loss,
	// malformed landmarks, or an empty sensor report).
	GestureNone Gesture = "none"
	// GestureOpenPalm is the relaxed flat hand. It doubles as the
	// default baseline when no composite score clears the floor.
	GestureOpenPalm Gesture = "open_palm"
	// GesturePointerUp is the committing pose: index extended, the
	// remaining fingers curled with the thumb braced against them.
	GesturePointerUp Gesture = "pointer_up"
	// GestureClosedFist is the abort/reset pose.
	GestureClosedFist Gesture = "closed_fist"
)

// Frame is one classified sensor sample for one tracked hand in one tick.
// Ephemeral: frames are consumed by the intent engine and never persisted
// except through the optional session recorder.
type Frame struct {
	// HandID is the sensor-assigned identity, unique for the lifetime
	// of the tracked hand.
	HandID int `json:"hand_id"`

	Gesture    Gesture `json:"gesture"`
	Confidence float64 `json:"confidence"` // winning composite score [0,1]

	// X and Y are mirrored screen-space coordinates in [0,1]. The mirror
	// is applied exactly once, inside the classifier; re-mirroring
	// anywhere downstream is a defect.
	X float64 `json:"x"`
	Y float64 `json:"y"`

	// TimestampMs is the caller-supplied monotonic clock, milliseconds.
	TimestampMs float64 `json:"timestamp_ms"`

	// RawLandmarks carries the source keypoints for overlay consumers.
	// Optional; nil when the producer omits them.
	RawLandmarks *Landmarks `json:"raw_landmarks,omitempty"`
}

// Intent is the stabilised record emitted to consumers. The transport
// layer turns these into actual pointer events on a target surface.
type Intent struct {
	HandID     int     `json:"hand_id"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	IsPinching bool    `json:"is_pinching"`
	Gesture    Gesture `json:"gesture"`
	Confidence float64 `json:"confidence"`

	// Synthetic marks a corrective release injected by the teleport
	// guard rather than an observation of the hand itself.
	Synthetic bool `json:"synthetic,omitempty"`

	TimestampMs float64 `json:"timestamp_ms"`
}

// Package pipeline composes the intent stabilisation engine: classifier,
// per-hand FSMs, arbitration, teleport guard, and the guarded emission
// path onto the bus.
//
// The whole pipeline runs synchronously once per sensor callback. There
// is no internal concurrency; the engine mutex only serialises callers
// (websocket handlers, replay) that might otherwise overlap frame passes.
package pipeline

import (
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/handwave-data/handwave/internal/arbiter"
	"github.com/handwave-data/handwave/internal/bus"
	"github.com/handwave-data/handwave/internal/classify"
	"github.com/handwave-data/handwave/internal/config"
	"github.com/handwave-data/handwave/internal/guard"
	"github.com/handwave-data/handwave/internal/hand"
	"github.com/handwave-data/handwave/internal/intent"
	"github.com/handwave-data/handwave/internal/monitoring"
)

// SensorHand is one hand's raw landmark report inside a sensor tick.
type SensorHand struct {
	HandID    int             `json:"hand_id"`
	Landmarks []hand.Landmark `json:"landmarks"`
}

// Recorder persists frames and intents for offline replay and reports.
// The engine treats it as optional write-only storage; errors are the
// recorder's to log, never the frame path's to handle.
type Recorder interface {
	RecordFrame(session string, f hand.Frame)
	RecordIntent(session string, ev hand.Intent)
}

// Metrics holds per-session pipeline counters, reset with the engine.
type Metrics struct {
	FramesIn          int64 `json:"frames_in"`
	SyntheticFrames   int64 `json:"synthetic_frames"`
	FramesArbitrated  int64 `json:"frames_arbitrated_out"`
	IntentsEmitted    int64 `json:"intents_emitted"`
	SyntheticReleases int64 `json:"synthetic_releases"`
	CoastTimeouts     int64 `json:"coast_timeouts"`
	HandsRetired      int64 `json:"hands_retired"`
	MalformedFrames   int64 `json:"malformed_frames"`
}

// handEntry is one tracked hand's engine-side state. The FSM instance is
// owned here, not by the sensor: it survives brief absences and is
// retired only once idle and unreferenced long enough.
type handEntry struct {
	fsm    *intent.FSM
	absent int
}

// Engine is the per-session composition of the stabilisation pipeline.
type Engine struct {
	mu sync.Mutex

	session    string
	tuning     *config.TuningConfig
	classifier *classify.Classifier
	arb        *arbiter.Arbitrator
	guard      *guard.Guard
	bus        *bus.Bus
	recorder   Recorder

	hands   map[int]*handEntry
	metrics Metrics
}

// New creates an Engine from validated tuning. The bus is required; the
// recorder may be nil.
func New(tuning *config.TuningConfig, b *bus.Bus, rec Recorder) *Engine {
	e := &Engine{
		session: uuid.NewString(),
		tuning:  tuning,
		classifier: classify.New(classify.Params{
			OverscanScale: tuning.GetOverscanScale(),
			BraceScale:    tuning.GetBraceScale(),
		}),
		guard:    guard.New(tuning.GetTeleportThresholdSq()),
		bus:      b,
		recorder: rec,
		hands:    make(map[int]*handEntry),
	}
	e.arb = arbiter.New(arbiterConfig(tuning), e.pinching)
	return e
}

// Session returns the engine's session identity.
func (e *Engine) Session() string { return e.session }

// ApplyTuning swaps the tuning surface at runtime. In-flight FSM state is
// preserved; the new values govern from the next processed frame.
func (e *Engine) ApplyTuning(tuning *config.TuningConfig) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tuning = tuning
	e.classifier.SetParams(classify.Params{
		OverscanScale: tuning.GetOverscanScale(),
		BraceScale:    tuning.GetBraceScale(),
	})
	e.arb.SetConfig(arbiterConfig(tuning))
	e.guard.SetThresholdSq(tuning.GetTeleportThresholdSq())
	fsmCfg := fsmConfig(tuning)
	for _, entry := range e.hands {
		entry.fsm.SetConfig(fsmCfg)
	}
	monitoring.Logf("[Engine] tuning applied (session %s)", e.session)
}

// Tuning returns the current tuning snapshot.
func (e *Engine) Tuning() *config.TuningConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tuning
}

// MetricsSnapshot returns a copy of the pipeline counters.
func (e *Engine) MetricsSnapshot() Metrics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.metrics
}

// ActiveHandID returns the arbitration lock owner, or arbiter.NoOwner.
func (e *Engine) ActiveHandID() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.arb.ActiveHandID()
}

// HandState returns the FSM state for a tracked hand, if it is live.
func (e *Engine) HandState(handID int) (intent.State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.hands[handID]
	if !ok {
		return "", false
	}
	return entry.fsm.State(), true
}

// ProcessSensor classifies one sensor tick's landmark reports and runs
// the full frame pass. Malformed hands (wrong landmark count, NaN
// coordinates) degrade to none/0 frames rather than aborting the tick.
func (e *Engine) ProcessSensor(nowMs float64, hands []SensorHand) {
	frames := make([]hand.Frame, 0, len(hands))
	for _, sh := range hands {
		lm, err := hand.LandmarksFromSlice(sh.Landmarks)
		var f hand.Frame
		if err != nil {
			e.mu.Lock()
			e.metrics.MalformedFrames++
			e.mu.Unlock()
			monitoring.Logf("[Engine] malformed frame for hand %d: %v", sh.HandID, err)
			f = hand.Frame{Gesture: hand.GestureNone}
		} else {
			f = e.classifier.Classify(lm)
			if f.Gesture != hand.GestureNone {
				f.RawLandmarks = &lm
			}
		}
		f.HandID = sh.HandID
		f.TimestampMs = nowMs
		frames = append(frames, f)
	}
	e.ProcessFrames(nowMs, frames)
}

// ProcessFrames runs one synchronous frame pass over already-classified
// frames. Used directly by replay and tests; ProcessSensor feeds it in
// production.
func (e *Engine) ProcessFrames(nowMs float64, frames []hand.Frame) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Deterministic processing order regardless of sensor enumeration.
	sort.Slice(frames, func(i, j int) bool { return frames[i].HandID < frames[j].HandID })

	present := make(map[int]bool, len(frames))
	for _, f := range frames {
		present[f.HandID] = true
	}

	// Any hand with a live FSM but no frame this tick still receives a
	// synthetic none/0 call so its coast/timeout logic advances.
	all := frames
	for _, id := range e.sortedHandIDs() {
		if !present[id] {
			all = append(all, hand.Frame{HandID: id, Gesture: hand.GestureNone, TimestampMs: nowMs})
		}
	}

	fsmCfg := fsmConfig(e.tuning)
	for i := range all {
		f := all[i]
		synthetic := i >= len(frames)

		entry, ok := e.hands[f.HandID]
		if !ok {
			entry = &handEntry{fsm: intent.New(fsmCfg)}
			e.hands[f.HandID] = entry
			monitoring.Logf("[Engine] tracking hand %d", f.HandID)
		}
		if synthetic {
			entry.absent++
			e.metrics.SyntheticFrames++
		} else {
			entry.absent = 0
			e.metrics.FramesIn++
		}

		wasCoasting := entry.fsm.IsCoasting()
		entry.fsm.ProcessFrame(f.Gesture, f.Confidence, f.X, f.Y, f.TimestampMs)
		if wasCoasting && entry.fsm.State() == intent.StateIdle &&
			!entry.fsm.IsCoasting() && f.Confidence < e.tuning.GetConfHigh() {
			e.metrics.CoastTimeouts++
		}
	}

	// Arbitration sees only real frames: the lock must release when the
	// owning hand's input disappears, synthetic frames notwithstanding.
	allowed := e.arb.Filter(frames)
	allowedSet := make(map[int]bool, len(allowed))
	for _, f := range allowed {
		allowedSet[f.HandID] = true
	}
	e.metrics.FramesArbitrated += int64(len(frames) - len(allowed))

	// Guard observes every live hand each frame; emission happens only
	// for hands that cleared arbitration. Positions reach the bus
	// exclusively through this path.
	for _, f := range all {
		entry := e.hands[f.HandID]
		hasPosition := f.Gesture != hand.GestureNone
		emissions := e.guard.Observe(f.HandID, entry.fsm.IsPinching(), entry.fsm.IsCoasting(), hasPosition, f.X, f.Y)
		if !allowedSet[f.HandID] {
			continue
		}
		for _, em := range emissions {
			ev := hand.Intent{
				HandID:      f.HandID,
				X:           em.X,
				Y:           em.Y,
				IsPinching:  em.IsPinching,
				Gesture:     f.Gesture,
				Confidence:  f.Confidence,
				Synthetic:   em.Synthetic,
				TimestampMs: nowMs,
			}
			if em.Synthetic {
				ev.Gesture = hand.GestureNone
				ev.Confidence = 0
				e.metrics.SyntheticReleases++
			}
			e.metrics.IntentsEmitted++
			e.bus.Publish(ev)
			if e.recorder != nil {
				e.recorder.RecordIntent(e.session, ev)
			}
		}
	}

	if e.recorder != nil && e.tuning.GetRecordRawFrames() {
		for _, f := range frames {
			e.recorder.RecordFrame(e.session, f)
		}
	}

	e.retireAbsentHands()
}

// retireAbsentHands discards FSM instances that have returned to IDLE and
// gone unreferenced for the configured number of frames.
func (e *Engine) retireAbsentHands() {
	limit := e.tuning.GetRetireAfterFrames()
	for id, entry := range e.hands {
		if entry.absent >= limit && entry.fsm.State() == intent.StateIdle {
			delete(e.hands, id)
			e.guard.Forget(id)
			e.metrics.HandsRetired++
			monitoring.Logf("[Engine] retired hand %d after %d absent frames", id, entry.absent)
		}
	}
}

func (e *Engine) sortedHandIDs() []int {
	ids := make([]int, 0, len(e.hands))
	for id := range e.hands {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// pinching is the arbitrator's view into FSM commit state.
func (e *Engine) pinching(handID int) bool {
	entry, ok := e.hands[handID]
	return ok && entry.fsm.IsPinching()
}

func fsmConfig(t *config.TuningConfig) intent.Config {
	return intent.Config{
		ConfHigh:          t.GetConfHigh(),
		ConfLow:           t.GetConfLow(),
		DwellReadyMs:      t.GetDwellReadyMs(),
		DwellCommitMs:     t.GetDwellCommitMs(),
		DwellIdleMs:       t.GetDwellIdleMs(),
		CoastTimeoutMs:    t.GetCoastTimeoutMs(),
		MildLeakRatio:     t.GetMildLeakRatio(),
		OpposingLeakRatio: t.GetOpposingLeakRatio(),
	}
}

func arbiterConfig(t *config.TuningConfig) arbiter.Config {
	policy, err := arbiter.ParsePolicy(t.GetArbitrationPolicy())
	if err != nil {
		// Validate() rejects unknown policies before tuning reaches
		// the engine; fall back rather than crash mid-session.
		policy = arbiter.LockOnSight
	}
	return arbiter.Config{
		Policy:          policy,
		DropHoverEvents: t.GetDropHoverEvents(),
		ConfHigh:        t.GetConfHigh(),
	}
}

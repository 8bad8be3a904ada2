package playback

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

type observerState struct {
	active            *AnimePlaybackDetection
	lastObserved      *AnimePlaybackDetection
	observedProcessID *uint32
	observedPlayer    *Player
	selectedPlayers   []Player
	enabled           bool
	pollIntervalMs    uint64
	lastError         *string
}

type observerRuntimeConfig struct {
	selectedPlayers   []Player
	pollIntervalMs    uint64
	observedProcessID *uint32
}

// Observer continuously polls the process table and keeps a sticky "currently
// playing" detection: once a player process is observed, its detection stays
// active (and tracks file changes) until the process disappears, at which
// point it moves to lastObserved.
type Observer struct {
	mu    sync.RWMutex
	state observerState

	// lifecycle serialises enable/disable transitions and guards the worker
	// handle; never taken while holding mu.
	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

func NewObserver() *Observer {
	return &Observer{
		state: observerState{
			selectedPlayers: AllPlayers(),
			pollIntervalMs:  DefaultPollIntervalMs,
		},
	}
}

// Snapshot returns a read-only copy of the observer state.
func (o *Observer) Snapshot() ObserverSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snapshotLocked()
}

func (o *Observer) snapshotLocked() ObserverSnapshot {
	return ObserverSnapshot{
		Active:            cloneDetection(o.state.active),
		LastObserved:      cloneDetection(o.state.lastObserved),
		ObservedProcessID: cloneUint32(o.state.observedProcessID),
		ObservedPlayer:    clonePlayer(o.state.observedPlayer),
		SelectedPlayers:   append([]Player(nil), o.state.selectedPlayers...),
		Enabled:           o.state.enabled,
		PollIntervalMs:    o.state.pollIntervalMs,
		LastError:         cloneString(o.state.lastError),
	}
}

// Configure applies the requested changes and returns the resulting
// snapshot. Nil request fields leave their setting untouched; the poll
// interval is clamped; enabling is idempotent.
func (o *Observer) Configure(request ConfigureObserverRequest) ObserverSnapshot {
	o.lifecycle.Lock()
	defer o.lifecycle.Unlock()

	o.mu.Lock()
	if request.Players != nil {
		o.state.selectedPlayers = dedupPlayers(request.Players)
	}
	if request.PollIntervalMs != nil {
		o.state.pollIntervalMs = clampPollIntervalMs(*request.PollIntervalMs)
	}

	var startWorker, stopWorker bool
	if request.Enabled != nil && *request.Enabled != o.state.enabled {
		o.state.enabled = *request.Enabled
		if o.state.enabled {
			startWorker = true
		} else {
			stopWorker = true
			// lastObserved keeps its value across a disable so the UI can
			// still show what played most recently.
			if o.state.active != nil {
				o.state.lastObserved = o.state.active
			}
			o.state.active = nil
			o.state.observedProcessID = nil
			o.state.observedPlayer = nil
			o.state.lastError = nil
		}
	}
	snapshot := o.snapshotLocked()
	o.mu.Unlock()

	if startWorker && o.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		o.cancel = cancel
		o.done = make(chan struct{})
		go o.worker(ctx, o.done)
		log.Info("[PlaybackObserver] Worker started")
	}
	if stopWorker && o.cancel != nil {
		o.cancel()
		<-o.done
		o.cancel = nil
		o.done = nil
		log.Info("[PlaybackObserver] Worker stopped")
	}

	return snapshot
}

// Stop disables the observer and waits for the worker to exit.
func (o *Observer) Stop() {
	enabled := false
	o.Configure(ConfigureObserverRequest{Enabled: &enabled})
}

func (o *Observer) worker(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		config := o.runtimeConfig()

		cycle, err := collectDetectionCycleResult(config.selectedPlayers)
		if err != nil {
			o.applyCycleError(err.Error())
		} else {
			o.applyCycleSuccess(config, cycle)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(config.pollIntervalMs) * time.Millisecond):
		}
	}
}

func (o *Observer) runtimeConfig() observerRuntimeConfig {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return observerRuntimeConfig{
		selectedPlayers:   append([]Player(nil), o.state.selectedPlayers...),
		pollIntervalMs:    o.state.pollIntervalMs,
		observedProcessID: cloneUint32(o.state.observedProcessID),
	}
}

// applyCycleSuccess folds one cycle's candidates into the sticky state. If
// the observer was disabled or the selected players changed while the cycle
// ran, its results are stale and are discarded.
func (o *Observer) applyCycleSuccess(config observerRuntimeConfig, cycle DetectionCycleResult) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.enabled {
		return
	}

	o.state.lastError = nil

	if !playersEqual(o.state.selectedPlayers, config.selectedPlayers) {
		return
	}

	if config.observedProcessID != nil {
		observedPID := *config.observedProcessID
		if _, running := cycle.MatchedPlayerPIDs[observedPID]; running {
			for i := range cycle.Detections {
				if cycle.Detections[i].ProcessID == observedPID {
					detection := cycle.Detections[i]
					o.state.active = &detection
					o.state.observedProcessID = &detection.ProcessID
					player := detection.Player
					o.state.observedPlayer = &player
					break
				}
			}
		} else {
			if o.state.active != nil {
				o.state.lastObserved = o.state.active
			}
			o.state.active = nil
			o.state.observedProcessID = nil
			o.state.observedPlayer = nil
		}
	}

	if o.state.observedProcessID == nil {
		if len(cycle.Detections) > 0 {
			detection := cycle.Detections[0]
			o.state.active = &detection
			o.state.observedProcessID = &detection.ProcessID
			player := detection.Player
			o.state.observedPlayer = &player
		} else {
			o.state.active = nil
			o.state.observedPlayer = nil
		}
	}
}

func (o *Observer) applyCycleError(message string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.enabled {
		return
	}
	o.state.lastError = &message
}

func playersEqual(a, b []Player) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func cloneDetection(value *AnimePlaybackDetection) *AnimePlaybackDetection {
	if value == nil {
		return nil
	}
	clone := *value
	if value.Episode != nil {
		episode := *value.Episode
		clone.Episode = &episode
	}
	return &clone
}

func cloneUint32(value *uint32) *uint32 {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func clonePlayer(value *Player) *Player {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	clone := *value
	return &clone
}

package status

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matheus3301/huddle/internal/bus"
)

// State is the event-stream connection state as seen by the daemon.
type State string

const (
	Booting      State = "BOOTING"
	Connecting   State = "CONNECTING"
	Online       State = "ONLINE"
	Reconnecting State = "RECONNECTING"
	// Offline means the stream is gone and no reconnect is scheduled. Local
	// state stays readable; presence simply stops updating.
	Offline State = "OFFLINE"
	Error   State = "ERROR"
)

var validTransitions = map[State][]State{
	Booting:      {Connecting, Offline, Error},
	Connecting:   {Online, Reconnecting, Offline, Error},
	Online:       {Reconnecting, Offline, Error},
	Reconnecting: {Connecting, Offline, Error},
	Offline:      {Connecting, Error},
	Error:        {Booting},
}

// Machine tracks and enforces connection state transitions.
type Machine struct {
	mu      sync.RWMutex
	current State
	bus     *bus.Bus
}

// NewMachine creates a new state machine starting in Booting state.
func NewMachine(b *bus.Bus) *Machine {
	return &Machine{
		current: Booting,
		bus:     b,
	}
}

// Current returns the current state.
func (m *Machine) Current() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition attempts to move to a new state. Returns error if transition is invalid.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(validTransitions[m.current], to) {
		return fmt.Errorf("invalid transition from %s to %s", m.current, to)
	}
	from := m.current
	m.current = to
	m.bus.Emit(bus.ConnectionStatusChanged, StatusChange{From: from, To: to})
	return nil
}

// Reach walks from the current state to target along the shortest valid
// path, emitting each intermediate change. Used when the transport skips
// states (for example a reconnect that lands straight back online).
func (m *Machine) Reach(target State) error {
	for _, step := range path(m.Current(), target) {
		if err := m.Transition(step); err != nil {
			return err
		}
	}
	if m.Current() != target {
		return fmt.Errorf("no path from %s to %s", m.Current(), target)
	}
	return nil
}

func path(from, to State) []State {
	if from == to {
		return nil
	}
	prev := map[State]State{from: from}
	queue := []State{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range validTransitions[cur] {
			if _, seen := prev[next]; seen {
				continue
			}
			prev[next] = cur
			if next == to {
				var steps []State
				for s := to; s != from; s = prev[s] {
					steps = append([]State{s}, steps...)
				}
				return steps
			}
			queue = append(queue, next)
		}
	}
	return nil
}

// StatusChange is the payload for status change events.
type StatusChange struct {
	From State
	To   State
}

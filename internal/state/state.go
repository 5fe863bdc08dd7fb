package state

import (
	"fmt"
	"sync"
	"time"
)

// Phase is where the most recent render stands.
type Phase int

const (
	IDLE Phase = iota
	LOADING
	RENDERED
	FAILED
	RESET
)

func (p Phase) String() string {
	switch p {
	case LOADING:
		return "loading"
	case RENDERED:
		return "rendered"
	case FAILED:
		return "failed"
	case RESET:
		return "reset"
	default:
		return "idle"
	}
}

func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := IDLE; candidate <= RESET; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

type RenderInfo struct {
	ID       string    `json:"id,omitempty"`
	Label    string    `json:"label"`
	Color    string    `json:"color,omitempty"`
	Source   string    `json:"source,omitempty"`
	Err      string    `json:"error,omitempty"`
	Finished time.Time `json:"finished,omitzero"`
}

type State struct {
	Phase    Phase      `json:"phase"`
	Pending  int        `json:"pending"`
	Renders  uint64     `json:"renders"`
	Failures uint64     `json:"failures"`
	Last     RenderInfo `json:"last"`
}

// Store holds the render status shown by the API and preview page.
type Store struct {
	mu    sync.RWMutex
	state State
}

func NewStore() *Store {
	return &Store{state: State{Phase: IDLE}}
}

func (store *Store) Snapshot() State {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return store.state
}

func (store *Store) SetPhase(phase Phase) {
	store.mu.Lock()
	store.state.Phase = phase
	store.mu.Unlock()
}

// Started records a render whose base image is loading.
func (store *Store) Started(info RenderInfo) {
	store.mu.Lock()
	store.state.Phase = LOADING
	store.state.Pending++
	store.state.Last = info
	store.mu.Unlock()
}

// Finished records the outcome of a render. A discarded render only
// leaves the pending count.
func (store *Store) Finished(info RenderInfo, err error, discarded bool) {
	store.mu.Lock()
	defer store.mu.Unlock()
	if store.state.Pending > 0 {
		store.state.Pending--
	}
	if discarded {
		return
	}
	info.Finished = time.Now()
	if err != nil {
		info.Err = err.Error()
		store.state.Phase = FAILED
		store.state.Failures++
	} else {
		store.state.Phase = RENDERED
		store.state.Renders++
	}
	store.state.Last = info
}

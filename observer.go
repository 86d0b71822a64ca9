package sensorscan

import (
	"context"
	"log/slog"
	"sync"

	"github.com/kellegous/poop"
)

// StateProvider reports the adapter power state.
type StateProvider interface {
	State(ctx context.Context) (AdapterState, error)

	// OnStateChange calls fn for every state change until the returned func is
	// called. With emitCurrent, fn is also called once with the current state.
	OnStateChange(fn func(AdapterState), emitCurrent bool) (func(), error)
}

// StateObserver keeps the most recent adapter state.
type StateObserver struct {
	provider StateProvider
	log      *slog.Logger
	onChange func(AdapterState)

	lck    sync.RWMutex
	state  AdapterState
	remove func()
	closed bool
}

func NewStateObserver(
	provider StateProvider,
	log *slog.Logger,
	onChange func(AdapterState),
) *StateObserver {
	if log == nil {
		log = discardLogger()
	}
	return &StateObserver{
		provider: provider,
		log:      log,
		onChange: onChange,
	}
}

// Start queries the state once and subscribes to changes. The subscription
// lives until Close.
func (o *StateObserver) Start(ctx context.Context) error {
	if o.provider == nil {
		return poop.New("no state provider")
	}

	state, err := o.provider.State(ctx)
	if err != nil {
		o.log.Warn("query adapter state", "error", err)
	} else {
		o.set(state)
	}

	remove, err := o.provider.OnStateChange(o.set, true)
	if err != nil {
		return poop.Chain(err)
	}

	o.lck.Lock()
	defer o.lck.Unlock()
	if o.closed {
		remove()
		return nil
	}
	o.remove = remove
	return nil
}

func (o *StateObserver) set(state AdapterState) {
	o.lck.Lock()
	if o.closed {
		o.lck.Unlock()
		return
	}
	o.state = state
	o.lck.Unlock()

	o.log.Debug("adapter state", "state", state)
	if o.onChange != nil {
		o.onChange(state)
	}
}

func (o *StateObserver) State() AdapterState {
	o.lck.RLock()
	defer o.lck.RUnlock()
	return o.state
}

// Close releases the state subscription. It is safe to call more than once.
func (o *StateObserver) Close() {
	o.lck.Lock()
	remove := o.remove
	o.remove = nil
	o.closed = true
	o.lck.Unlock()

	if remove != nil {
		remove()
	}
}

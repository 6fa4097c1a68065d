package kv

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// State is the availability of the remote tier as seen by a Facade.
type State int32

const (
	StateUp State = iota
	StateDown
	StateSyncing
)

func (s State) String() string {
	switch s {
	case StateUp:
		return "up"
	case StateDown:
		return "down"
	case StateSyncing:
		return "syncing"
	default:
		return "unknown"
	}
}

// DefaultHealthcheckInterval is the delay between remote pings while DOWN.
const DefaultHealthcheckInterval = 5 * time.Second

// Remote is the tier a Facade prefers. *RemoteStore implements it.
type Remote interface {
	Store
	Ping(ctx context.Context) error

	// Restore merges a topic written locally during an outage back into
	// the remote, setting its expiry only for a positive ttl.
	Restore(ctx context.Context, topic string, fields map[string]string, ttl time.Duration) error
}

// FacadeConfig configures a Facade. Hooks are optional and are called
// without any Facade lock held.
type FacadeConfig struct {
	HealthcheckInterval time.Duration
	Logger              *slog.Logger

	// OnStateChange observes every transition.
	OnStateChange func(State)

	// OnFallback observes every operation served by the local tier.
	OnFallback func(op string)
}

// Facade serves every operation from the remote tier while it is UP. The
// first transport failure switches it to DOWN: operations go to the local
// tier and a healthcheck pings the remote until it answers. The local
// contents are then copied into the remote (SYNCING, writers blocked),
// the local tier is cleared and the facade is UP again.
type Facade struct {
	local  *LocalStore
	remote Remote
	cfg    FacadeConfig
	logger *slog.Logger

	stateMu   sync.RWMutex
	state     State
	checking  bool
	closed    bool
	syncMu    sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Store = (*Facade)(nil)

// NewFacade starts in the UP state. The remote is not contacted until the
// first operation.
func NewFacade(local *LocalStore, remote Remote, cfg FacadeConfig) *Facade {
	if cfg.HealthcheckInterval <= 0 {
		cfg.HealthcheckInterval = DefaultHealthcheckInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Facade{
		local:  local,
		remote: remote,
		cfg:    cfg,
		logger: logger.With("component", "kv"),
		state:  StateUp,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (f *Facade) State() State {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.state
}

func (f *Facade) isClosed() bool {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.closed
}

func (f *Facade) Put(ctx context.Context, topic string, fields map[string]string, ttl time.Duration) error {
	if f.isClosed() {
		return ErrClosed
	}
	f.syncMu.RLock()
	defer f.syncMu.RUnlock()

	if f.State() == StateUp {
		err := f.remote.Put(ctx, topic, fields, ttl)
		if !f.fallback(err) {
			return err
		}
	}
	f.servedLocally("put")
	return f.local.Put(ctx, topic, fields, ttl)
}

func (f *Facade) Get(ctx context.Context, topic string) (map[string]string, bool, error) {
	if f.isClosed() {
		return nil, false, ErrClosed
	}
	if f.State() == StateUp {
		v, ok, err := f.remote.Get(ctx, topic)
		if !f.fallback(err) {
			return v, ok, err
		}
	}
	f.servedLocally("get")
	return f.local.Get(ctx, topic)
}

func (f *Facade) GetField(ctx context.Context, topic, field string) (string, bool, error) {
	if f.isClosed() {
		return "", false, ErrClosed
	}
	if f.State() == StateUp {
		v, ok, err := f.remote.GetField(ctx, topic, field)
		if !f.fallback(err) {
			return v, ok, err
		}
	}
	f.servedLocally("get_field")
	return f.local.GetField(ctx, topic, field)
}

func (f *Facade) GetFields(ctx context.Context, topic string, fields ...string) ([]string, bool, error) {
	if f.isClosed() {
		return nil, false, ErrClosed
	}
	if f.State() == StateUp {
		v, ok, err := f.remote.GetFields(ctx, topic, fields...)
		if !f.fallback(err) {
			return v, ok, err
		}
	}
	f.servedLocally("get_fields")
	return f.local.GetFields(ctx, topic, fields...)
}

func (f *Facade) Merge(ctx context.Context, topic string, fields map[string]string) error {
	if f.isClosed() {
		return ErrClosed
	}
	f.syncMu.RLock()
	defer f.syncMu.RUnlock()

	if f.State() == StateUp {
		err := f.remote.Merge(ctx, topic, fields)
		if !f.fallback(err) {
			return err
		}
	}
	f.servedLocally("merge")
	return f.local.Merge(ctx, topic, fields)
}

func (f *Facade) Remove(ctx context.Context, topic string, keys ...string) error {
	if f.isClosed() {
		return ErrClosed
	}
	f.syncMu.RLock()
	defer f.syncMu.RUnlock()

	if f.State() == StateUp {
		err := f.remote.Remove(ctx, topic, keys...)
		if !f.fallback(err) {
			return err
		}
	}
	f.servedLocally("remove")
	return f.local.Remove(ctx, topic, keys...)
}

func (f *Facade) SetIfAbsent(ctx context.Context, topic, value string, ttl time.Duration) (bool, error) {
	if f.isClosed() {
		return false, ErrClosed
	}
	f.syncMu.RLock()
	defer f.syncMu.RUnlock()

	if f.State() == StateUp {
		ok, err := f.remote.SetIfAbsent(ctx, topic, value, ttl)
		if !f.fallback(err) {
			return ok, err
		}
	}
	f.servedLocally("set_if_absent")
	return f.local.SetIfAbsent(ctx, topic, value, ttl)
}

func (f *Facade) CompareAndSwapField(ctx context.Context, topic, field, old, next string) (bool, error) {
	if f.isClosed() {
		return false, ErrClosed
	}
	f.syncMu.RLock()
	defer f.syncMu.RUnlock()

	if f.State() == StateUp {
		ok, err := f.remote.CompareAndSwapField(ctx, topic, field, old, next)
		if !f.fallback(err) {
			return ok, err
		}
	}
	f.servedLocally("compare_and_swap")
	return f.local.CompareAndSwapField(ctx, topic, field, old, next)
}

// Close stops the healthcheck and the local expiry loop. It does not close
// the remote client. Operations return ErrClosed afterwards.
func (f *Facade) Close() error {
	f.closeOnce.Do(func() {
		f.stateMu.Lock()
		f.closed = true
		f.stateMu.Unlock()
		close(f.done)
	})
	f.wg.Wait()
	return f.local.Close()
}

// fallback reports whether the operation should be retried on the local
// tier. Only transport failures do that; they also take the facade DOWN.
func (f *Facade) fallback(err error) bool {
	if err == nil || !IsTransport(err) {
		return false
	}
	f.markDown(err)
	return true
}

func (f *Facade) markDown(cause error) {
	f.stateMu.Lock()
	if f.state != StateUp {
		f.stateMu.Unlock()
		return
	}
	f.state = StateDown
	spawn := !f.checking && !f.closed
	if spawn {
		f.checking = true
		f.wg.Add(1)
	}
	f.stateMu.Unlock()

	f.logger.Warn("remote store unavailable, serving from local store", "error", cause)
	f.notify(StateDown)

	if spawn {
		go f.healthcheck()
	}
}

func (f *Facade) healthcheck() {
	defer f.wg.Done()

	timer := time.NewTimer(f.cfg.HealthcheckInterval)
	defer timer.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-timer.C:
		}

		if f.tryRecover() {
			return
		}
		timer.Reset(f.cfg.HealthcheckInterval)
	}
}

// tryRecover pings the remote and resyncs it. It returns true once the
// facade is UP again.
func (f *Facade) tryRecover() bool {
	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.HealthcheckInterval)
	err := f.remote.Ping(ctx)
	cancel()
	if err != nil {
		f.logger.Error("remote store healthcheck failed", "error", err)
		return false
	}

	// Client level timeouts bound the copy.
	if err := f.resync(context.Background()); err != nil {
		f.logger.Error("remote store resync failed", "error", err)
		return false
	}
	return true
}

func (f *Facade) resync(ctx context.Context) error {
	f.stateMu.Lock()
	if f.state != StateDown {
		f.stateMu.Unlock()
		return nil
	}
	f.state = StateSyncing
	f.stateMu.Unlock()
	f.notify(StateSyncing)

	f.syncMu.Lock()
	defer f.syncMu.Unlock()

	entries := f.local.Snapshot()
	f.logger.Info("remote store reachable, syncing local entries", "entries", len(entries))
	if err := f.copyToRemote(ctx, entries); err != nil {
		f.stateMu.Lock()
		f.state = StateDown
		f.stateMu.Unlock()
		f.notify(StateDown)
		return err
	}

	// Readers switch to the remote before the local copy goes away.
	f.stateMu.Lock()
	f.state = StateUp
	f.checking = false
	f.stateMu.Unlock()
	f.local.Clear()

	f.logger.Info("remote store recovered", "synced_entries", len(entries))
	f.notify(StateUp)
	return nil
}

func (f *Facade) copyToRemote(ctx context.Context, entries []Entry) error {
	var errs []error
	for _, e := range entries {
		var err error
		if e.Unique {
			_, err = f.remote.SetIfAbsent(ctx, e.Topic, e.Value, e.TTL)
		} else {
			err = f.remote.Restore(ctx, e.Topic, e.Fields, e.TTL)
		}
		if err != nil {
			if IsTransport(err) {
				return err
			}
			// A server side rejection of one entry must not block recovery.
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		f.logger.Warn("entries dropped during resync", "count", len(errs), "error", errors.Join(errs...))
	}
	return nil
}

func (f *Facade) notify(s State) {
	if f.cfg.OnStateChange != nil {
		f.cfg.OnStateChange(s)
	}
}

func (f *Facade) servedLocally(op string) {
	if f.cfg.OnFallback != nil {
		f.cfg.OnFallback(op)
	}
}

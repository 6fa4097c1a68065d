package kv

import (
	"container/heap"
	"container/list"
	"context"
	"sync"
	"time"
)

// DefaultLocalCapacity bounds each map of a LocalStore when no capacity is configured.
const DefaultLocalCapacity = 10000

// LocalConfig sizes the two maps of a LocalStore independently.
type LocalConfig struct {
	Capacity       int // hash topics
	UniqueCapacity int // scalar entries created by SetIfAbsent
}

// Entry is one item of a LocalStore snapshot. Unique entries carry Value,
// hash topics carry Fields. TTL is the configured lifetime, not the remaining one.
type Entry struct {
	Topic  string
	Fields map[string]string
	Value  string
	Unique bool
	TTL    time.Duration
}

type hashEntry struct {
	fields map[string]string
	elem   *list.Element
	ttl    ttlRecord
}

type uniqueEntry struct {
	value string
	elem  *list.Element
	ttl   ttlRecord
}

type ttlRecord struct {
	ttl      time.Duration
	deadline time.Time
}

// LocalStore is an in-memory Store. Each map keeps insertion order and
// evicts its oldest entry once it grows past capacity, regardless of TTL.
// Expiry is driven by a single goroutine draining a deadline heap.
type LocalStore struct {
	mu sync.Mutex

	capacity       int
	uniqueCapacity int

	hashes      map[string]*hashEntry
	hashOrder   *list.List
	uniques     map[string]*uniqueEntry
	uniqueOrder *list.List
	expiries    expiryHeap
	closed      bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewLocalStore builds a LocalStore and starts its expiry loop. Call Close to stop it.
func NewLocalStore(cfg LocalConfig) *LocalStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultLocalCapacity
	}
	if cfg.UniqueCapacity <= 0 {
		cfg.UniqueCapacity = DefaultLocalCapacity
	}

	s := &LocalStore{
		capacity:       cfg.Capacity,
		uniqueCapacity: cfg.UniqueCapacity,
		hashes:         make(map[string]*hashEntry),
		hashOrder:      list.New(),
		uniques:        make(map[string]*uniqueEntry),
		uniqueOrder:    list.New(),
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}

	s.wg.Add(1)
	go s.expireLoop()
	return s
}

func (s *LocalStore) Put(_ context.Context, topic string, fields map[string]string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	// An empty field set removes the name outright, as Remove does.
	if len(fields) == 0 {
		s.deleteHashLocked(topic)
		s.deleteUniqueLocked(topic)
		return nil
	}

	e, ok := s.hashes[topic]
	if ok {
		e.fields = cloneFields(fields)
		e.ttl = ttlRecord{}
	} else {
		e = &hashEntry{
			fields: cloneFields(fields),
			elem:   s.hashOrder.PushBack(topic),
		}
		s.hashes[topic] = e
		s.shrinkLocked()
	}

	if ttl > 0 {
		e.ttl = s.scheduleLocked(topic, false, ttl)
	}
	return nil
}

func (s *LocalStore) Get(_ context.Context, topic string) (map[string]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	e, ok := s.hashes[topic]
	if !ok {
		return nil, false, nil
	}
	return cloneFields(e.fields), true, nil
}

func (s *LocalStore) GetField(_ context.Context, topic, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", false, ErrClosed
	}

	e, ok := s.hashes[topic]
	if !ok {
		return "", false, nil
	}
	v, ok := e.fields[field]
	return v, ok, nil
}

func (s *LocalStore) GetFields(_ context.Context, topic string, fields ...string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, false, ErrClosed
	}

	e, ok := s.hashes[topic]
	if !ok {
		return nil, false, nil
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if v, ok := e.fields[f]; ok {
			out = append(out, v)
		}
	}
	return out, true, nil
}

func (s *LocalStore) Merge(_ context.Context, topic string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(fields) == 0 {
		return nil
	}

	e, ok := s.hashes[topic]
	if !ok {
		s.hashes[topic] = &hashEntry{
			fields: cloneFields(fields),
			elem:   s.hashOrder.PushBack(topic),
		}
		s.shrinkLocked()
		return nil
	}
	for k, v := range fields {
		e.fields[k] = v
	}
	return nil
}

func (s *LocalStore) Remove(_ context.Context, topic string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(keys) == 0 {
		s.deleteHashLocked(topic)
		s.deleteUniqueLocked(topic)
		return nil
	}

	e, ok := s.hashes[topic]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(e.fields, k)
	}
	// Match Redis: a hash with no fields left no longer exists.
	if len(e.fields) == 0 {
		s.deleteHashLocked(topic)
	}
	return nil
}

func (s *LocalStore) SetIfAbsent(_ context.Context, topic, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	if _, ok := s.uniques[topic]; ok {
		return false, nil
	}
	if _, ok := s.hashes[topic]; ok {
		return false, nil
	}

	e := &uniqueEntry{
		value: value,
		elem:  s.uniqueOrder.PushBack(topic),
	}
	s.uniques[topic] = e
	s.shrinkLocked()

	if ttl > 0 {
		e.ttl = s.scheduleLocked(topic, true, ttl)
	}
	return true, nil
}

func (s *LocalStore) CompareAndSwapField(_ context.Context, topic, field, old, next string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, ErrClosed
	}
	e, ok := s.hashes[topic]
	if !ok {
		return false, nil
	}
	cur, ok := e.fields[field]
	if !ok || cur != old {
		return false, nil
	}
	e.fields[field] = next
	return true, nil
}

// Unique returns the value of a scalar entry created by SetIfAbsent.
func (s *LocalStore) Unique(topic string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.uniques[topic]
	if !ok {
		return "", false
	}
	return e.value, true
}

// Len reports the number of hash topics and scalar entries held.
func (s *LocalStore) Len() (hashes, uniques int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes), len(s.uniques)
}

// Snapshot copies every entry in insertion order, hash topics first.
func (s *LocalStore) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.hashes)+len(s.uniques))
	for el := s.hashOrder.Front(); el != nil; el = el.Next() {
		topic := el.Value.(string)
		out = append(out, Entry{
			Topic:  topic,
			Fields: cloneFields(s.hashes[topic].fields),
			TTL:    s.hashes[topic].ttl.ttl,
		})
	}
	for el := s.uniqueOrder.Front(); el != nil; el = el.Next() {
		topic := el.Value.(string)
		out = append(out, Entry{
			Topic:  topic,
			Value:  s.uniques[topic].value,
			Unique: true,
			TTL:    s.uniques[topic].ttl.ttl,
		})
	}
	return out
}

// Clear drops all entries and TTL bookkeeping.
func (s *LocalStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hashes = make(map[string]*hashEntry)
	s.hashOrder.Init()
	s.uniques = make(map[string]*uniqueEntry)
	s.uniqueOrder.Init()
	s.expiries = s.expiries[:0]
}

// Close stops the expiry loop. Store operations return ErrClosed afterwards.
func (s *LocalStore) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *LocalStore) deleteHashLocked(topic string) {
	if e, ok := s.hashes[topic]; ok {
		s.hashOrder.Remove(e.elem)
		delete(s.hashes, topic)
	}
}

func (s *LocalStore) deleteUniqueLocked(topic string) {
	if e, ok := s.uniques[topic]; ok {
		s.uniqueOrder.Remove(e.elem)
		delete(s.uniques, topic)
	}
}

// shrinkLocked evicts the oldest entries of each map past its capacity.
// Their pending heap items are skipped by expireDue.
func (s *LocalStore) shrinkLocked() {
	for len(s.hashes) > s.capacity {
		s.deleteHashLocked(s.hashOrder.Front().Value.(string))
	}
	for len(s.uniques) > s.uniqueCapacity {
		s.deleteUniqueLocked(s.uniqueOrder.Front().Value.(string))
	}
}

func (s *LocalStore) scheduleLocked(topic string, unique bool, ttl time.Duration) ttlRecord {
	rec := ttlRecord{ttl: ttl, deadline: time.Now().Add(ttl)}

	earliest := len(s.expiries) == 0 || rec.deadline.Before(s.expiries[0].deadline)
	heap.Push(&s.expiries, expiryItem{topic: topic, unique: unique, deadline: rec.deadline})
	if earliest {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return rec
}

func (s *LocalStore) expireLoop() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		var next time.Time
		if len(s.expiries) > 0 {
			next = s.expiries[0].deadline
		}
		s.mu.Unlock()

		var fire <-chan time.Time
		var timer *time.Timer
		if !next.IsZero() {
			timer = time.NewTimer(time.Until(next))
			fire = timer.C
		}

		select {
		case <-s.done:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-s.wake:
		case now := <-fire:
			s.expireDue(now)
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (s *LocalStore) expireDue(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.expiries) > 0 && !s.expiries[0].deadline.After(now) {
		item := heap.Pop(&s.expiries).(expiryItem)
		// An entry rewritten or evicted after scheduling no longer carries
		// this deadline; skip stale items.
		if item.unique {
			if e, ok := s.uniques[item.topic]; ok && e.ttl.deadline.Equal(item.deadline) {
				s.deleteUniqueLocked(item.topic)
			}
			continue
		}
		if e, ok := s.hashes[item.topic]; ok && e.ttl.deadline.Equal(item.deadline) {
			s.deleteHashLocked(item.topic)
		}
	}
}

type expiryItem struct {
	topic    string
	unique   bool
	deadline time.Time
}

type expiryHeap []expiryItem

func (h expiryHeap) Len() int           { return len(h) }
func (h expiryHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h expiryHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x any)        { *h = append(*h, x.(expiryItem)) }
func (h *expiryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

package cache

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/metrics"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/resilience"
)

var ErrEntryTooLarge = errors.New("cache: entry exceeds max bytes")

const defaultObserverBuffer = 256

type EventKind string

const (
	EventMiss  EventKind = "miss"
	EventEvict EventKind = "evict"
)

type Reason string

const (
	ReasonAbsent   Reason = "absent"
	ReasonExpired  Reason = "expired"
	ReasonCorrupt  Reason = "corrupt"
	ReasonCapacity Reason = "capacity"
	ReasonRemoved  Reason = "removed"
	ReasonCleared  Reason = "cleared"
)

type Event struct {
	Kind   EventKind
	Key    string
	Reason Reason
	At     time.Time
}

// Observer receives misses and evictions on the dispatcher goroutine.
type Observer interface {
	OnCacheEvent(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) OnCacheEvent(ev Event) { f(ev) }

type Config struct {
	MaxEntries int
	MaxBytes   int64
	// DefaultTTL applies when Set is called with ttl <= 0. Zero means no expiry.
	DefaultTTL time.Duration

	Codec          *Codec
	Observer       Observer
	ObserverBuffer int
	Metrics        *metrics.Collectors
	Logger         *logging.Logger
}

type entry struct {
	key        string
	value      []byte
	insertedAt time.Time
	ttl        time.Duration
	expiresAt  time.Time
	size       int64
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !e.expiresAt.After(now)
}

// Store is a bounded LRU cache with per-entry TTL. Values are stored as
// sonic JSON passed through the configured Codec.
type Store struct {
	cfg    Config
	logger *logging.Logger

	mu    sync.Mutex
	ll    *list.List
	items map[string]*list.Element
	size  int64

	flight resilience.SingleFlight

	emitMu  sync.RWMutex
	closed  bool
	events  chan Event
	done    chan struct{}
	dropped atomic.Uint64

	now func() time.Time
}

func NewStore(cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.ObserverBuffer <= 0 {
		cfg.ObserverBuffer = defaultObserverBuffer
	}

	s := &Store{
		cfg:    cfg,
		logger: logger,
		ll:     list.New(),
		items:  make(map[string]*list.Element),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	if cfg.Observer != nil {
		s.events = make(chan Event, cfg.ObserverBuffer)
		go s.dispatch()
	} else {
		close(s.done)
	}
	return s
}

// Get decodes the value under key into dst. Expired and undecodable
// entries are evicted and reported as misses.
func (s *Store) Get(ctx context.Context, key string, dst any) bool {
	plain, ok := s.lookup(ctx, key, true)
	if !ok {
		return false
	}
	if err := sonic.Unmarshal(plain, dst); err != nil {
		s.discardCorrupt(ctx, key, err)
		return false
	}
	return true
}

func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if key == "" {
		return fmt.Errorf("cache: key is required")
	}

	plain, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return s.setEncoded(ctx, key, plain, ttl)
}

func (s *Store) Remove(_ context.Context, key string) {
	s.mu.Lock()
	elem, ok := s.items[key]
	if ok {
		s.removeElement(elem)
	}
	s.mu.Unlock()

	if ok {
		s.emit(EventEvict, key, ReasonRemoved)
	}
}

// RemovePrefix evicts every key under a namespace such as "lineup:team-1:".
func (s *Store) RemovePrefix(_ context.Context, prefix string) int {
	if prefix == "" {
		return 0
	}

	s.mu.Lock()
	removed := make([]string, 0)
	for key, elem := range s.items {
		if strings.HasPrefix(key, prefix) {
			s.removeElement(elem)
			removed = append(removed, key)
		}
	}
	s.mu.Unlock()

	for _, key := range removed {
		s.emit(EventEvict, key, ReasonRemoved)
	}
	return len(removed)
}

func (s *Store) Clear(_ context.Context) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.items))
	for key := range s.items {
		keys = append(keys, key)
	}
	s.ll.Init()
	s.items = make(map[string]*list.Element)
	s.size = 0
	s.mu.Unlock()

	for _, key := range keys {
		s.emit(EventEvict, key, ReasonCleared)
	}
}

// GetOrLoad fills dst from the cache or, on a miss, from loader. Concurrent
// callers for the same key share one loader run; the run is detached from
// the first caller's cancellation so the others still get a result.
func (s *Store) GetOrLoad(ctx context.Context, key string, ttl time.Duration, dst any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return fmt.Errorf("loader is required")
	}
	if key == "" {
		loaded, err := loader(ctx)
		if err != nil {
			return err
		}
		return copyInto(loaded, dst)
	}

	if s.Get(ctx, key, dst) {
		return nil
	}

	shared, err, _ := s.flight.Do(ctx, key, func() (any, error) {
		if plain, ok := s.lookup(ctx, key, false); ok {
			return plain, nil
		}

		loaded, loadErr := loader(context.WithoutCancel(ctx))
		if loadErr != nil {
			return nil, loadErr
		}
		plain, encErr := sonic.Marshal(loaded)
		if encErr != nil {
			return nil, fmt.Errorf("cache: encode %s: %w", key, encErr)
		}
		if setErr := s.setEncoded(ctx, key, plain, ttl); setErr != nil {
			s.logger.WarnContext(ctx, "cache store skipped loaded value", "key", key, "error", setErr)
		}
		return plain, nil
	})
	if err != nil {
		return err
	}

	plain, _ := shared.([]byte)
	return sonic.Unmarshal(plain, dst)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ll.Len()
}

func (s *Store) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// DroppedEvents counts events discarded because the observer queue was full.
func (s *Store) DroppedEvents() uint64 {
	return s.dropped.Load()
}

// Close stops the observer dispatcher after it drains queued events and
// releases the codec. The store stays usable for reads and writes.
func (s *Store) Close() {
	s.emitMu.Lock()
	if s.closed {
		s.emitMu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	if s.events != nil {
		close(s.events)
	}
	s.emitMu.Unlock()

	<-s.done
	s.cfg.Codec.Close()
}

func (s *Store) lookup(ctx context.Context, key string, report bool) ([]byte, bool) {
	if key == "" {
		return nil, false
	}

	now := s.now()
	s.mu.Lock()
	elem, ok := s.items[key]
	if !ok {
		s.mu.Unlock()
		if report {
			s.emit(EventMiss, key, ReasonAbsent)
		}
		return nil, false
	}

	e := elem.Value.(*entry)
	if e.expired(now) {
		s.removeElement(elem)
		s.mu.Unlock()
		s.emit(EventEvict, key, ReasonExpired)
		if report {
			s.emit(EventMiss, key, ReasonExpired)
		}
		return nil, false
	}
	s.ll.MoveToFront(elem)
	blob := e.value
	s.mu.Unlock()

	plain, err := s.cfg.Codec.Decode(key, blob)
	if err != nil {
		s.discardCorrupt(ctx, key, err)
		return nil, false
	}
	return plain, true
}

func (s *Store) discardCorrupt(ctx context.Context, key string, cause error) {
	s.logger.WarnContext(ctx, "cache entry unreadable, evicting", "key", key, "error", cause)

	s.mu.Lock()
	elem, ok := s.items[key]
	if ok {
		s.removeElement(elem)
	}
	s.mu.Unlock()

	if ok {
		s.emit(EventEvict, key, ReasonCorrupt)
	}
	s.emit(EventMiss, key, ReasonCorrupt)
}

func (s *Store) setEncoded(_ context.Context, key string, plain []byte, ttl time.Duration) error {
	blob, err := s.cfg.Codec.Encode(key, plain)
	if err != nil {
		return fmt.Errorf("cache: seal %s: %w", key, err)
	}

	size := int64(len(blob) + len(key))
	if s.cfg.MaxBytes > 0 && size > s.cfg.MaxBytes {
		return fmt.Errorf("%w: %s is %d bytes, bound is %d", ErrEntryTooLarge, key, size, s.cfg.MaxBytes)
	}

	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	now := s.now()
	e := &entry{
		key:        key,
		value:      blob,
		insertedAt: now,
		ttl:        ttl,
		size:       size,
	}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	s.mu.Lock()
	if existing, ok := s.items[key]; ok {
		s.removeElement(existing)
	}
	evicted := make([]string, 0)
	for s.ll.Len() > 0 && s.overBound(size) {
		oldest := s.ll.Back()
		evicted = append(evicted, oldest.Value.(*entry).key)
		s.removeElement(oldest)
	}
	s.items[key] = s.ll.PushFront(e)
	s.size += size
	s.mu.Unlock()

	for _, k := range evicted {
		s.emit(EventEvict, k, ReasonCapacity)
	}
	return nil
}

func (s *Store) overBound(incoming int64) bool {
	if s.cfg.MaxEntries > 0 && s.ll.Len() >= s.cfg.MaxEntries {
		return true
	}
	return s.cfg.MaxBytes > 0 && s.size+incoming > s.cfg.MaxBytes
}

// removeElement requires s.mu.
func (s *Store) removeElement(elem *list.Element) {
	e := elem.Value.(*entry)
	s.ll.Remove(elem)
	delete(s.items, e.key)
	s.size -= e.size
}

func (s *Store) emit(kind EventKind, key string, reason Reason) {
	s.cfg.Metrics.CacheEvent(string(kind), string(reason))
	if s.events == nil {
		return
	}

	ev := Event{Kind: kind, Key: key, Reason: reason, At: s.now()}

	s.emitMu.RLock()
	defer s.emitMu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.dropped.Add(1)
		s.cfg.Metrics.CacheEventDropped()
	}
}

func (s *Store) dispatch() {
	defer close(s.done)
	for ev := range s.events {
		s.notify(ev)
	}
}

func (s *Store) notify(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("cache observer panicked", "key", ev.Key, "panic", r)
		}
	}()
	s.cfg.Observer.OnCacheEvent(ev)
}

func copyInto(value, dst any) error {
	plain, err := sonic.Marshal(value)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(plain, dst)
}

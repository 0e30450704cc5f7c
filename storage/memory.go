package storage

import (
	"sort"
	"sync"
	"time"
)

// MemoryStorage implements Storage with a single map guarded by one lock.
// Each method holds the lock for its whole duration.
type MemoryStorage struct {
	mu     sync.RWMutex
	data   map[string]*Value
	timers map[string]*time.Timer
	closed bool

	waiters *waiterHub
	now     func() time.Time
}

// MemoryOption is a function that configures a MemoryStorage instance
type MemoryOption func(*MemoryStorage)

// WithClock overrides the clock used for expiry and stream ids
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStorage) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemory creates a new in-memory storage instance
func NewMemory(opts ...MemoryOption) *MemoryStorage {
	s := &MemoryStorage{
		data:    make(map[string]*Value),
		timers:  make(map[string]*time.Timer),
		waiters: newWaiterHub(),
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// lookup returns the live value for key. Callers must hold s.mu.
func (s *MemoryStorage) lookup(key string) (*Value, bool) {
	value, exists := s.data[key]
	if !exists || value.IsExpired(s.now()) {
		return nil, false
	}
	return value, true
}

// remove deletes key and stops its timer. Callers must hold s.mu for writing.
func (s *MemoryStorage) remove(key string) {
	delete(s.data, key)
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
}

// store replaces the value at key, dropping any pending expiry timer.
// Callers must hold s.mu for writing.
func (s *MemoryStorage) store(key string, value *Value) {
	s.remove(key)
	s.data[key] = value
}

// Get retrieves a string value by key
func (s *MemoryStorage) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.lookup(key)
	if !exists {
		return "", false, nil
	}

	switch value.Type {
	case ValueTypeString:
		return value.Data.(*StringValue).Data, true, nil
	case ValueTypeList, ValueTypeStream:
		return "", false, ErrWrongType
	default:
		return "", false, nil
	}
}

// Set stores a string value, discarding whatever the key held before.
// A positive ttl schedules deletion of this value after ttl. Once the
// storage is closed no timer is started and the expiry is only applied
// lazily on read.
func (s *MemoryStorage) Set(key string, value string, ttl time.Duration) error {
	newValue := &Value{
		Type: ValueTypeString,
		Data: &StringValue{Data: value},
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if ttl > 0 {
		expiry := s.now().Add(ttl)
		newValue.Expiry = &expiry
	}
	s.store(key, newValue)

	if ttl > 0 && !s.closed {
		s.timers[key] = time.AfterFunc(ttl, func() {
			s.expire(key, newValue)
		})
	}

	return nil
}

// expire runs on the timer goroutine. It only deletes key if it still holds
// the value the timer was started for.
func (s *MemoryStorage) expire(key string, scheduled *Value) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.data[key]; ok && current == scheduled {
		delete(s.data, key)
		delete(s.timers, key)
	}
}

// Del deletes one or more keys
func (s *MemoryStorage) Del(keys ...string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := int64(0)
	for _, key := range keys {
		if _, exists := s.lookup(key); exists {
			deleted++
		}
		s.remove(key)
	}
	return deleted
}

// Exists counts how many of the keys exist; repeated keys count repeatedly
func (s *MemoryStorage) Exists(keys ...string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := int64(0)
	for _, key := range keys {
		if _, exists := s.lookup(key); exists {
			count++
		}
	}
	return count
}

// Type returns the type of the value stored at key
func (s *MemoryStorage) Type(key string) ValueType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, exists := s.lookup(key)
	if !exists {
		return ValueTypeNone
	}
	return value.Type
}

// Keys returns the live keys matching a glob-style pattern, sorted
func (s *MemoryStorage) Keys(pattern string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0)
	for key := range s.data {
		if _, exists := s.lookup(key); !exists {
			continue
		}
		if MatchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// KeyCount returns the number of live keys
func (s *MemoryStorage) KeyCount() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := int64(0)
	for key := range s.data {
		if _, exists := s.lookup(key); exists {
			count++
		}
	}
	return count
}

// FlushAll removes every key
func (s *MemoryStorage) FlushAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.data {
		s.remove(key)
	}
	return nil
}

// listFor returns the list at key, creating it when create is set.
// Callers must hold s.mu.
func (s *MemoryStorage) listFor(key string, create bool) (*ListValue, error) {
	value, exists := s.lookup(key)
	if !exists {
		if !create {
			return nil, nil
		}
		list := &ListValue{}
		s.store(key, &Value{Type: ValueTypeList, Data: list})
		return list, nil
	}

	switch value.Type {
	case ValueTypeList:
		return value.Data.(*ListValue), nil
	case ValueTypeString, ValueTypeStream:
		return nil, ErrWrongType
	default:
		return nil, ErrWrongType
	}
}

// RPush appends values to the tail of the list at key in argument order
func (s *MemoryStorage) RPush(key string, values ...string) (int64, error) {
	s.mu.Lock()
	list, err := s.listFor(key, true)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	list.Elements = append(list.Elements, values...)
	length := int64(len(list.Elements))
	s.mu.Unlock()

	s.waiters.notify(key)
	return length, nil
}

// LPush prepends values one at a time, so the last value ends up at the head
func (s *MemoryStorage) LPush(key string, values ...string) (int64, error) {
	s.mu.Lock()
	list, err := s.listFor(key, true)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}

	elements := make([]string, 0, len(values)+len(list.Elements))
	for i := len(values) - 1; i >= 0; i-- {
		elements = append(elements, values[i])
	}
	list.Elements = append(elements, list.Elements...)
	length := int64(len(list.Elements))
	s.mu.Unlock()

	s.waiters.notify(key)
	return length, nil
}

// LRange returns the inclusive slice [start, stop]. Negative indices count
// from the end and are clamped to 0; stop is clamped to the last index.
func (s *MemoryStorage) LRange(key string, start, stop int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.listFor(key, false)
	if err != nil || list == nil {
		return []string{}, err
	}

	length := int64(len(list.Elements))
	if start < 0 {
		start = max(length+start, 0)
	}
	stop = min(stop, length-1)
	if stop < 0 {
		stop = max(length+stop, 0)
	}

	if length == 0 || start >= length || start > stop {
		return []string{}, nil
	}

	result := make([]string, stop-start+1)
	copy(result, list.Elements[start:stop+1])
	return result, nil
}

// LLen returns the length of the list at key, 0 when absent
func (s *MemoryStorage) LLen(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list, err := s.listFor(key, false)
	if err != nil || list == nil {
		return 0, err
	}
	return int64(len(list.Elements)), nil
}

// LPop removes and returns up to count elements from the head. The key is
// kept even when the list becomes empty.
func (s *MemoryStorage) LPop(key string, count int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.listFor(key, false)
	if err != nil || list == nil {
		return nil, err
	}

	n := min(max(count, 1), len(list.Elements))
	if n == 0 {
		return nil, nil
	}

	popped := make([]string, n)
	copy(popped, list.Elements[:n])
	list.Elements = list.Elements[n:]
	return popped, nil
}

// WaitForPush subscribes to pushes on any of the keys
func (s *MemoryStorage) WaitForPush(keys ...string) (<-chan struct{}, func()) {
	return s.waiters.subscribe(keys...)
}

// streamFor returns the stream at key, creating it when create is set.
// Callers must hold s.mu.
func (s *MemoryStorage) streamFor(key string, create bool) (*Stream, error) {
	value, exists := s.lookup(key)
	if !exists {
		if !create {
			return nil, nil
		}
		return NewStream(), nil
	}

	switch value.Type {
	case ValueTypeStream:
		return value.Data.(*Stream), nil
	case ValueTypeString, ValueTypeList:
		return nil, ErrWrongType
	default:
		return nil, ErrWrongType
	}
}

// XAdd appends an entry to the stream at key. A stream is only created
// when the first append succeeds.
func (s *MemoryStorage) XAdd(key string, id string, fields []FieldValue) (StreamID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, err := s.streamFor(key, true)
	if err != nil {
		return StreamID{}, err
	}

	added, err := stream.Append(id, fields, s.now())
	if err != nil {
		return StreamID{}, err
	}

	if _, exists := s.lookup(key); !exists {
		s.store(key, &Value{Type: ValueTypeStream, Data: stream})
	}
	return added, nil
}

// XRange returns the entries of the stream at key within [start, end]
func (s *MemoryStorage) XRange(key string, start, end StreamID, count int) ([]StreamEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, err := s.streamFor(key, false)
	if err != nil || stream == nil {
		return nil, err
	}
	return stream.Range(start, end, count), nil
}

// XLen returns the number of entries in the stream at key
func (s *MemoryStorage) XLen(key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, err := s.streamFor(key, false)
	if err != nil || stream == nil {
		return 0, err
	}
	return int64(stream.Len()), nil
}

// Close stops all pending expiry timers
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
	return nil
}

var _ Storage = (*MemoryStorage)(nil)

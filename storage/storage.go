package storage

import (
	"errors"
	"time"
)

// ErrWrongType is returned when a command targets a key holding another type
var ErrWrongType = errors.New("WRONGTYPE Operation against a key holding the wrong kind of value")

// Storage defines the data operations the command layer relies on.
// Every method is atomic with respect to every other method.
type Storage interface {
	// String operations
	Get(key string) (string, bool, error)
	Set(key string, value string, ttl time.Duration) error

	// Key operations
	Del(keys ...string) int64
	Exists(keys ...string) int64
	Type(key string) ValueType
	Keys(pattern string) []string
	KeyCount() int64
	FlushAll() error

	// List operations
	RPush(key string, values ...string) (int64, error)
	LPush(key string, values ...string) (int64, error)
	LRange(key string, start, stop int64) ([]string, error)
	LLen(key string) (int64, error)
	LPop(key string, count int) ([]string, error)

	// WaitForPush returns a channel that receives after a push to any of the
	// keys. The returned func releases the subscription.
	WaitForPush(keys ...string) (<-chan struct{}, func())

	// Stream operations
	XAdd(key string, id string, fields []FieldValue) (StreamID, error)
	XRange(key string, start, end StreamID, count int) ([]StreamEntry, error)
	XLen(key string) (int64, error)

	// Shutdown
	Close() error
}

package storage

import "time"

// ValueType represents the Redis data type held by a key
type ValueType int

const (
	ValueTypeNone ValueType = iota
	ValueTypeString
	ValueTypeList
	ValueTypeStream
)

// String returns the Redis-compatible type name
func (vt ValueType) String() string {
	switch vt {
	case ValueTypeString:
		return "string"
	case ValueTypeList:
		return "list"
	case ValueTypeStream:
		return "stream"
	default:
		return "none"
	}
}

// Value is a stored value with metadata. Data holds *StringValue,
// *ListValue or *Stream according to Type.
type Value struct {
	Type   ValueType
	Data   interface{}
	Expiry *time.Time
}

// IsExpired returns true if the value has expired at the given instant
func (v *Value) IsExpired(now time.Time) bool {
	return v.Expiry != nil && !now.Before(*v.Expiry)
}

// StringValue represents a string value
type StringValue struct {
	Data string
}

// ListValue represents a list value. The head is Elements[0].
type ListValue struct {
	Elements []string
}

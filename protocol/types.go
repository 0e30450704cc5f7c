package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// ValueType represents the type of a RESP value
type ValueType byte

const (
	// RESP value types
	TypeSimpleString ValueType = '+'
	TypeError        ValueType = '-'
	TypeInteger      ValueType = ':'
	TypeBulkString   ValueType = '$'
	TypeArray        ValueType = '*'
)

// Value represents a RESP value, either parsed from the wire or built as a reply
type Value struct {
	Type    ValueType
	Data    []byte
	Integer int64
	Array   []Value
	IsNull  bool
}

// SimpleString builds a +<text> reply
func SimpleString(s string) Value {
	return Value{Type: TypeSimpleString, Data: []byte(s)}
}

// BulkString builds a $<len> reply
func BulkString(s string) Value {
	return Value{Type: TypeBulkString, Data: []byte(s)}
}

// NullBulkString builds a $-1 reply
func NullBulkString() Value {
	return Value{Type: TypeBulkString, IsNull: true}
}

// Error builds a -<message> reply
func Error(msg string) Value {
	return Value{Type: TypeError, Data: []byte(msg)}
}

// Errorf builds an error reply from a format string
func Errorf(format string, args ...interface{}) Value {
	return Error(fmt.Sprintf(format, args...))
}

// Integer builds a :<n> reply
func Integer(n int64) Value {
	return Value{Type: TypeInteger, Integer: n}
}

// Array builds a *<n> reply; elements may themselves be arrays
func Array(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Type: TypeArray, Array: items}
}

// NullArray builds a *-1 reply
func NullArray() Value {
	return Value{Type: TypeArray, IsNull: true}
}

// BulkStringArray builds an array of bulk strings
func BulkStringArray(items []string) Value {
	values := make([]Value, len(items))
	for i, item := range items {
		values[i] = BulkString(item)
	}
	return Array(values...)
}

// String returns a string representation of the value
func (v Value) String() string {
	switch v.Type {
	case TypeSimpleString:
		return string(v.Data)
	case TypeError:
		return string(v.Data)
	case TypeInteger:
		return strconv.FormatInt(v.Integer, 10)
	case TypeBulkString:
		if v.IsNull {
			return "(nil)"
		}
		return string(v.Data)
	case TypeArray:
		if v.IsNull {
			return "(nil)"
		}
		parts := make([]string, len(v.Array))
		for i, item := range v.Array {
			parts[i] = item.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("unknown type %c", v.Type)
	}
}

// IsError returns true if this is an error value
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Error returns the error message if this is an error value
func (v Value) Error() string {
	if v.Type == TypeError {
		return string(v.Data)
	}
	return ""
}

// Command represents a client request: an upper-cased name and its arguments
type Command struct {
	Name string
	Args []string
}

// NewCommand builds a Command, upper-casing the name
func NewCommand(name string, args ...string) *Command {
	return &Command{Name: strings.ToUpper(name), Args: args}
}

// Empty reports whether the request decoded to nothing dispatchable
func (c *Command) Empty() bool {
	return c == nil || c.Name == ""
}

// String returns a string representation of the command
func (c *Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

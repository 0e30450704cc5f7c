package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// lineSanitizer replaces line breaks that would corrupt single-line replies
var lineSanitizer = strings.NewReplacer("\r", " ", "\n", " ")

// Writer provides buffered writing of RESP protocol messages
type Writer struct {
	bw *bufio.Writer
}

// NewWriter creates a new RESP protocol writer
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		bw: bufio.NewWriter(w),
	}
}

// WriteValue writes a RESP value to the output stream, recursing into arrays
func (w *Writer) WriteValue(v Value) error {
	switch v.Type {
	case TypeSimpleString:
		return w.WriteSimpleString(string(v.Data))
	case TypeError:
		return w.WriteError(string(v.Data))
	case TypeInteger:
		return w.WriteInteger(v.Integer)
	case TypeBulkString:
		if v.IsNull {
			return w.WriteNullBulkString()
		}
		return w.WriteBulkString(v.Data)
	case TypeArray:
		if v.IsNull {
			return w.WriteNullArray()
		}
		return w.WriteArray(v.Array)
	default:
		return fmt.Errorf("unsupported value type: %c", v.Type)
	}
}

// WriteSimpleString writes a simple string
func (w *Writer) WriteSimpleString(s string) error {
	return w.writeLine(TypeSimpleString, lineSanitizer.Replace(s))
}

// WriteError writes an error message
func (w *Writer) WriteError(msg string) error {
	return w.writeLine(TypeError, lineSanitizer.Replace(msg))
}

// WriteInteger writes an integer
func (w *Writer) WriteInteger(n int64) error {
	return w.writeLine(TypeInteger, strconv.FormatInt(n, 10))
}

// WriteBulkString writes a bulk string
func (w *Writer) WriteBulkString(data []byte) error {
	if err := w.writeLine(TypeBulkString, strconv.Itoa(len(data))); err != nil {
		return err
	}
	if _, err := w.bw.Write(data); err != nil {
		return err
	}
	return w.writeCRLF()
}

// WriteBulkStringFromString writes a bulk string from a string
func (w *Writer) WriteBulkStringFromString(s string) error {
	return w.WriteBulkString([]byte(s))
}

// WriteNullBulkString writes a null bulk string
func (w *Writer) WriteNullBulkString() error {
	return w.writeLine(TypeBulkString, "-1")
}

// WriteArray writes an array of values
func (w *Writer) WriteArray(values []Value) error {
	if err := w.writeLine(TypeArray, strconv.Itoa(len(values))); err != nil {
		return err
	}

	for _, value := range values {
		if err := w.WriteValue(value); err != nil {
			return err
		}
	}

	return nil
}

// WriteNullArray writes a null array
func (w *Writer) WriteNullArray() error {
	return w.writeLine(TypeArray, "-1")
}

// WriteCommand writes a command as a RESP array of bulk strings
func (w *Writer) WriteCommand(cmd string, args ...string) error {
	if err := w.writeLine(TypeArray, strconv.Itoa(1+len(args))); err != nil {
		return err
	}

	if err := w.WriteBulkStringFromString(cmd); err != nil {
		return err
	}

	for _, arg := range args {
		if err := w.WriteBulkStringFromString(arg); err != nil {
			return err
		}
	}

	return nil
}

// Flush flushes any buffered data to the underlying writer
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// writeLine writes a type prefix, the payload and CRLF
func (w *Writer) writeLine(t ValueType, s string) error {
	if err := w.bw.WriteByte(byte(t)); err != nil {
		return err
	}
	if _, err := w.bw.WriteString(s); err != nil {
		return err
	}
	return w.writeCRLF()
}

// writeCRLF writes the CRLF terminator
func (w *Writer) writeCRLF() error {
	_, err := w.bw.WriteString(CRLF)
	return err
}

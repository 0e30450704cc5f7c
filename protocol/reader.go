package protocol

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

const (
	// CRLF is the Redis protocol line terminator
	CRLF = "\r\n"

	// maxBulkSize is the maximum size for bulk strings (512MB)
	maxBulkSize = 512 * 1024 * 1024

	// maxArraySize is the maximum size for arrays
	maxArraySize = 1024 * 1024
)

// Reader is a streaming RESP protocol reader
type Reader struct {
	br *bufio.Reader
}

// NewReader creates a new streaming RESP reader
func NewReader(r io.Reader) *Reader {
	return &Reader{
		br: bufio.NewReader(r),
	}
}

// ReadCommand reads the next client request.
//
// Decoding is structural: a request is "*<n>" followed by n elements, each a
// "$<len>" header line and a payload line. The declared length is not checked
// against the payload. An element whose header is not a bulk header is one
// line long and is dropped, so the remaining elements still belong to this
// request. A request with no usable element, or anything that is not an
// array, decodes to an empty Command, which callers skip. Only I/O failures
// are returned as errors.
func (r *Reader) ReadCommand() (*Command, error) {
	line, err := r.readLine()
	if err != nil {
		return nil, err
	}

	if len(line) == 0 || ValueType(line[0]) != TypeArray {
		return &Command{}, nil
	}

	n, err := strconv.ParseInt(string(line[1:]), 10, 64)
	if err != nil || n <= 0 || n > maxArraySize {
		return &Command{}, nil
	}

	parts := make([]string, 0, n)
	for i := int64(0); i < n; i++ {
		header, err := r.readLine()
		if err != nil {
			return nil, err
		}
		if len(header) == 0 || ValueType(header[0]) != TypeBulkString {
			continue
		}

		payload, err := r.readLine()
		if err != nil {
			return nil, err
		}
		parts = append(parts, string(payload))
	}

	if len(parts) == 0 {
		return &Command{}, nil
	}
	return NewCommand(parts[0], parts[1:]...), nil
}

// ReadReply reads one reply as a client sees it. Unlike ReadCommand it is
// strict: bulk payloads must match their declared length.
func (r *Reader) ReadReply() (Value, error) {
	line, err := r.readLine()
	if err != nil {
		return Value{}, err
	}
	if len(line) == 0 {
		return Value{}, fmt.Errorf("empty reply line")
	}

	kind, rest := ValueType(line[0]), string(line[1:])
	switch kind {
	case TypeSimpleString:
		return SimpleString(rest), nil
	case TypeError:
		return Error(rest), nil
	}

	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return Value{}, fmt.Errorf("invalid %c header: %q", kind, rest)
	}

	switch kind {
	case TypeInteger:
		return Integer(n), nil
	case TypeBulkString:
		if n == -1 {
			return NullBulkString(), nil
		}
		if n < 0 || n > maxBulkSize {
			return Value{}, fmt.Errorf("invalid bulk length %d", n)
		}
		buf := make([]byte, n+2)
		if _, err := io.ReadFull(r.br, buf); err != nil {
			return Value{}, err
		}
		if buf[n] != '\r' || buf[n+1] != '\n' {
			return Value{}, fmt.Errorf("bulk payload longer than %d bytes", n)
		}
		return BulkString(string(buf[:n])), nil
	case TypeArray:
		if n == -1 {
			return NullArray(), nil
		}
		if n < 0 || n > maxArraySize {
			return Value{}, fmt.Errorf("invalid array length %d", n)
		}
		items := make([]Value, n)
		for i := range items {
			if items[i], err = r.ReadReply(); err != nil {
				return Value{}, err
			}
		}
		return Array(items...), nil
	default:
		return Value{}, fmt.Errorf("unknown reply type %q", kind)
	}
}

// Wait blocks until input is buffered or the connection fails, without
// consuming anything. A read deadline on the connection unblocks it.
func (r *Reader) Wait() error {
	_, err := r.br.Peek(1)
	return err
}

// readLine reads a line and strips its terminator. A bare LF is accepted as
// well as CRLF.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.br.ReadBytes('\n')
	if err != nil {
		if len(line) > 0 && err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	line = line[:len(line)-1]
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	return line, nil
}

package storage

import (
	"errors"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Stream ID errors, worded as the replies clients expect
var (
	ErrStreamIDZero     = errors.New("ERR The ID specified in XADD must be greater than 0-0")
	ErrStreamIDTooSmall = errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
	ErrInvalidStreamID  = errors.New("ERR Invalid stream ID specified as stream command argument")
)

// StreamID is a composite stream entry id ordered by (Ms, Seq)
type StreamID struct {
	Ms  uint64
	Seq uint64
}

var (
	// MinStreamID is the id that "-" stands for
	MinStreamID = StreamID{}
	// MaxStreamID is the id that "+" stands for
	MaxStreamID = StreamID{Ms: math.MaxUint64, Seq: math.MaxUint64}
)

// String formats the id as "<ms>-<seq>"
func (id StreamID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

// Compare returns -1, 0 or 1 comparing id to other
func (id StreamID) Compare(other StreamID) int {
	switch {
	case id.Ms < other.Ms:
		return -1
	case id.Ms > other.Ms:
		return 1
	case id.Seq < other.Seq:
		return -1
	case id.Seq > other.Seq:
		return 1
	default:
		return 0
	}
}

// FieldValue is one field/value pair of a stream entry
type FieldValue struct {
	Field string
	Value string
}

// StreamEntry is a single appended entry; Fields keep insertion order
type StreamEntry struct {
	ID     StreamID
	Fields []FieldValue
}

// FlatFields returns the fields as [f1, v1, f2, v2, ...]
func (e StreamEntry) FlatFields() []string {
	flat := make([]string, 0, len(e.Fields)*2)
	for _, fv := range e.Fields {
		flat = append(flat, fv.Field, fv.Value)
	}
	return flat
}

// Stream is an append-only log of entries ordered by id.
// LastID is the watermark: the highest id ever accepted.
type Stream struct {
	Entries []StreamEntry
	LastID  StreamID
}

// NewStream creates an empty stream
func NewStream() *Stream {
	return &Stream{}
}

// Len returns the number of entries
func (s *Stream) Len() int {
	return len(s.Entries)
}

// Append resolves rawID against the watermark and appends the entry.
//
// rawID is one of "*", "<ms>-*", "<ms>-<seq>", "*-<seq>" or a bare "<ms>".
// The resolved id must be strictly greater than the watermark and the
// literal id 0-0 is never accepted.
func (s *Stream) Append(rawID string, fields []FieldValue, now time.Time) (StreamID, error) {
	id, err := s.resolveID(rawID, now)
	if err != nil {
		return StreamID{}, err
	}

	if id.Compare(s.LastID) <= 0 {
		return StreamID{}, ErrStreamIDTooSmall
	}

	entry := StreamEntry{ID: id, Fields: make([]FieldValue, len(fields))}
	copy(entry.Fields, fields)
	s.Entries = append(s.Entries, entry)
	s.LastID = id
	return id, nil
}

func (s *Stream) resolveID(rawID string, now time.Time) (StreamID, error) {
	if rawID == "*" {
		ms := uint64(now.UnixMilli())
		return StreamID{Ms: ms, Seq: s.nextSeq(ms)}, nil
	}

	msPart, seqPart, hasSeq := strings.Cut(rawID, "-")

	var ms uint64
	if msPart == "*" {
		ms = uint64(now.UnixMilli())
	} else {
		v, err := strconv.ParseUint(msPart, 10, 64)
		if err != nil {
			return StreamID{}, ErrInvalidStreamID
		}
		ms = v
	}

	var seq uint64
	switch {
	case !hasSeq:
		seq = 0
	case seqPart == "*":
		return StreamID{Ms: ms, Seq: s.nextSeq(ms)}, nil
	default:
		v, err := strconv.ParseUint(seqPart, 10, 64)
		if err != nil {
			return StreamID{}, ErrInvalidStreamID
		}
		seq = v
	}

	if ms == 0 && seq == 0 && msPart != "*" {
		return StreamID{}, ErrStreamIDZero
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

// nextSeq picks the sequence number for an auto-sequenced id at ms
func (s *Stream) nextSeq(ms uint64) uint64 {
	switch {
	case ms == 0 && s.LastID.Seq == 0:
		return 1
	case ms != s.LastID.Ms:
		return 0
	default:
		return s.LastID.Seq + 1
	}
}

// Range returns the entries with start <= id <= end in id order. A count
// greater than zero limits the number of entries returned.
func (s *Stream) Range(start, end StreamID, count int) []StreamEntry {
	if start.Compare(end) > 0 {
		return nil
	}

	first := sort.Search(len(s.Entries), func(i int) bool {
		return s.Entries[i].ID.Compare(start) >= 0
	})

	var result []StreamEntry
	for i := first; i < len(s.Entries); i++ {
		entry := s.Entries[i]
		if entry.ID.Compare(end) > 0 {
			break
		}
		result = append(result, entry)
		if count > 0 && len(result) == count {
			break
		}
	}
	return result
}

// ParseRangeBound parses an XRANGE/XREAD bound. "-" and "+" are the minimum
// and maximum ids. A bare "<ms>" covers the whole millisecond: it becomes
// <ms>-0 as a lower bound and <ms>-<max> as an upper bound.
func ParseRangeBound(raw string, upper bool) (StreamID, error) {
	switch raw {
	case "-":
		return MinStreamID, nil
	case "+":
		return MaxStreamID, nil
	}

	msPart, seqPart, hasSeq := strings.Cut(raw, "-")
	ms, err := strconv.ParseUint(msPart, 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}

	if !hasSeq {
		if upper {
			return StreamID{Ms: ms, Seq: math.MaxUint64}, nil
		}
		return StreamID{Ms: ms}, nil
	}

	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return StreamID{}, ErrInvalidStreamID
	}
	return StreamID{Ms: ms, Seq: seq}, nil
}

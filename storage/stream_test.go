package storage_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/raniellyferreira/redis-inmemory-server/storage"
)

func TestStreamAppendIDResolution(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	tests := []struct {
		name    string
		setup   []string
		id      string
		want    string
		wantErr error
	}{
		{name: "explicit id", id: "1-1", want: "1-1"},
		{name: "literal zero on empty stream", id: "0-0", wantErr: storage.ErrStreamIDZero},
		{name: "literal zero after entries", setup: []string{"1-1"}, id: "0-0", wantErr: storage.ErrStreamIDZero},
		{name: "auto seq at ms zero on empty stream", id: "0-*", want: "0-1"},
		{name: "auto seq on new ms", setup: []string{"1-5"}, id: "2-*", want: "2-0"},
		{name: "auto seq on same ms", setup: []string{"5-5"}, id: "5-*", want: "5-6"},
		{name: "auto seq on empty stream", id: "7-*", want: "7-0"},
		{name: "auto seq below watermark", setup: []string{"5-5"}, id: "4-*", wantErr: storage.ErrStreamIDTooSmall},
		{name: "equal id", setup: []string{"5-5"}, id: "5-5", wantErr: storage.ErrStreamIDTooSmall},
		{name: "smaller id", setup: []string{"5-5"}, id: "5-4", wantErr: storage.ErrStreamIDTooSmall},
		{name: "full auto id", id: "*", want: "1700000000000-0"},
		{name: "full auto id same ms", setup: []string{"1700000000000-3"}, id: "*", want: "1700000000000-4"},
		{name: "auto ms explicit seq", id: "*-9", want: "1700000000000-9"},
		{name: "bare ms", id: "12", want: "12-0"},
		{name: "garbage", id: "abc", wantErr: storage.ErrInvalidStreamID},
		{name: "garbage seq", id: "1-x", wantErr: storage.ErrInvalidStreamID},
		{name: "negative ms", id: "-1-1", wantErr: storage.ErrInvalidStreamID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := storage.NewStream()
			for _, id := range tt.setup {
				if _, err := stream.Append(id, nil, now); err != nil {
					t.Fatalf("setup Append(%s) error = %v", id, err)
				}
			}

			got, err := stream.Append(tt.id, []storage.FieldValue{{Field: "f", Value: "v"}}, now)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Append(%s) error = %v, want %v", tt.id, err, tt.wantErr)
				}
				if stream.Len() != len(tt.setup) {
					t.Errorf("rejected append changed length to %d", stream.Len())
				}
				return
			}
			if err != nil {
				t.Fatalf("Append(%s) error = %v", tt.id, err)
			}
			if got.String() != tt.want {
				t.Errorf("Append(%s) = %s, want %s", tt.id, got, tt.want)
			}
			if stream.LastID != got {
				t.Errorf("LastID = %s, want %s", stream.LastID, got)
			}
		})
	}
}

func TestStreamIDCompare(t *testing.T) {
	a := storage.StreamID{Ms: 1, Seq: 9}
	b := storage.StreamID{Ms: 2, Seq: 0}

	if a.Compare(b) != -1 || b.Compare(a) != 1 || a.Compare(a) != 0 {
		t.Error("Compare() must order by ms then seq")
	}
	if storage.MaxStreamID.Compare(b) != 1 {
		t.Error("MaxStreamID must be greater than any id")
	}
}

func TestStreamRange(t *testing.T) {
	stream := storage.NewStream()
	now := time.Now()
	for _, id := range []string{"1-0", "1-1", "2-0", "3-5", "3-6"} {
		if _, err := stream.Append(id, []storage.FieldValue{{Field: "id", Value: id}}, now); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name       string
		start, end string
		count      int
		want       []string
	}{
		{name: "everything", start: "-", end: "+", want: []string{"1-0", "1-1", "2-0", "3-5", "3-6"}},
		{name: "inclusive bounds", start: "1-1", end: "3-5", want: []string{"1-1", "2-0", "3-5"}},
		{name: "bare ms covers the millisecond", start: "3", end: "3", want: []string{"3-5", "3-6"}},
		{name: "bare upper bound", start: "-", end: "1", want: []string{"1-0", "1-1"}},
		{name: "count", start: "-", end: "+", count: 2, want: []string{"1-0", "1-1"}},
		{name: "empty window", start: "2-1", end: "3-4"},
		{name: "reversed", start: "3-0", end: "1-0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, err := storage.ParseRangeBound(tt.start, false)
			if err != nil {
				t.Fatal(err)
			}
			end, err := storage.ParseRangeBound(tt.end, true)
			if err != nil {
				t.Fatal(err)
			}

			entries := stream.Range(start, end, tt.count)
			if len(entries) != len(tt.want) {
				t.Fatalf("Range() returned %d entries, want %d", len(entries), len(tt.want))
			}
			for i, entry := range entries {
				if entry.ID.String() != tt.want[i] {
					t.Errorf("entry %d = %s, want %s", i, entry.ID, tt.want[i])
				}
			}
		})
	}
}

func TestParseRangeBound(t *testing.T) {
	tests := []struct {
		raw     string
		upper   bool
		want    storage.StreamID
		wantErr bool
	}{
		{raw: "-", want: storage.MinStreamID},
		{raw: "+", upper: true, want: storage.MaxStreamID},
		{raw: "5-3", want: storage.StreamID{Ms: 5, Seq: 3}},
		{raw: "5", want: storage.StreamID{Ms: 5}},
		{raw: "5", upper: true, want: storage.StreamID{Ms: 5, Seq: math.MaxUint64}},
		{raw: "5-", wantErr: true},
		{raw: "x-1", wantErr: true},
		{raw: "$", wantErr: true},
	}

	for _, tt := range tests {
		got, err := storage.ParseRangeBound(tt.raw, tt.upper)
		if tt.wantErr {
			if !errors.Is(err, storage.ErrInvalidStreamID) {
				t.Errorf("ParseRangeBound(%q) error = %v, want ErrInvalidStreamID", tt.raw, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseRangeBound(%q, %v) = %v, %v; want %v", tt.raw, tt.upper, got, err, tt.want)
		}
	}
}

package packet

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func feedAll(t *testing.T, f *Framer, chunks ...string) []string {
	t.Helper()
	var got []string
	for _, c := range chunks {
		pkts, err := f.Feed([]byte(c))
		if err != nil {
			t.Fatalf("Feed(%q) error = %v", c, err)
		}
		for _, p := range pkts {
			got = append(got, string(p))
		}
	}
	return got
}

func TestFramer_Feed(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		pending string
	}{
		{
			name:   "single packet",
			chunks: []string{"hello\n"},
			want:   []string{"hello\n"},
		},
		{
			name:    "no newline",
			chunks:  []string{"hel"},
			pending: "hel",
		},
		{
			name:   "split across chunks",
			chunks: []string{"he", "l", "lo", "\n"},
			want:   []string{"hello\n"},
		},
		{
			name:    "many packets one chunk",
			chunks:  []string{"a\nbb\nccc\ndd"},
			want:    []string{"a\n", "bb\n", "ccc\n"},
			pending: "dd",
		},
		{
			name:    "remainder joins next chunk",
			chunks:  []string{"a\nb", "c\nd", "\n", "e"},
			want:    []string{"a\n", "bc\n", "d\n"},
			pending: "e",
		},
		{
			name:   "empty lines",
			chunks: []string{"\n\n", "\n"},
			want:   []string{"\n", "\n", "\n"},
		},
		{
			name:    "empty chunks are no-ops",
			chunks:  []string{"", "x", "", "\n", ""},
			want:    []string{"x\n"},
			pending: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(0)
			got := feedAll(t, f, tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("packets mismatch (-want +got):\n%s", diff)
			}
			if string(f.Pending()) != tt.pending {
				t.Errorf("Pending() = %q, want %q", f.Pending(), tt.pending)
			}
			if f.Buffered() != len(tt.pending) {
				t.Errorf("Buffered() = %d, want %d", f.Buffered(), len(tt.pending))
			}
		})
	}
}

func TestFramer_SplitInvariance(t *testing.T) {
	const input = "first line\nsecond\n\nthird one is longer\ntail"

	whole := feedAll(t, NewFramer(0), input)

	// every way of cutting the input in two, and byte at a time
	for cut := 0; cut <= len(input); cut++ {
		got := feedAll(t, NewFramer(0), input[:cut], input[cut:])
		if diff := cmp.Diff(whole, got); diff != "" {
			t.Fatalf("cut at %d mismatch (-whole +split):\n%s", cut, diff)
		}
	}
	var bytewise []string
	for i := range len(input) {
		bytewise = append(bytewise, input[i:i+1])
	}
	got := feedAll(t, NewFramer(0), bytewise...)
	if diff := cmp.Diff(whole, got); diff != "" {
		t.Fatalf("bytewise mismatch (-whole +split):\n%s", diff)
	}
}

func TestFramer_PacketsStayValid(t *testing.T) {
	f := NewFramer(0)
	first, err := f.Feed([]byte("one\ntw"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Feed([]byte("o\nthree\n")); err != nil {
		t.Fatal(err)
	}
	if len(first) != 1 || !bytes.Equal(first[0], []byte("one\n")) {
		t.Fatalf("first packet changed: %q", first)
	}
}

func TestFramer_Limit(t *testing.T) {
	f := NewFramer(4)

	if _, err := f.Feed([]byte("abc")); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}
	pkts, err := f.Feed([]byte("de"))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Feed() error = %v, want ErrBufferFull", err)
	}
	if pkts != nil {
		t.Errorf("expected no packets from discarded chunk, got %q", pkts)
	}
	if string(f.Pending()) != "abc" {
		t.Errorf("Pending() = %q, want state unchanged", f.Pending())
	}

	// the connection keeps going with the next chunk
	got := feedAll(t, f, "\n")
	if diff := cmp.Diff([]string{"abc\n"}, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

func TestFramer_LimitCountsOnlyIncompletePacket(t *testing.T) {
	tests := []struct {
		name    string
		chunks  []string
		want    []string
		pending string
	}{
		{
			name:   "chunk of short packets",
			chunks: []string{"ab\nab\n"},
			want:   []string{"ab\n", "ab\n"},
		},
		{
			name:    "long complete packet",
			chunks:  []string{"abc", "defg\n", "xy"},
			want:    []string{"abcdefg\n"},
			pending: "xy",
		},
		{
			name:    "remainder at the limit",
			chunks:  []string{"a\nbcde"},
			want:    []string{"a\n"},
			pending: "bcde",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFramer(4)
			got := feedAll(t, f, tt.chunks...)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("packets mismatch (-want +got):\n%s", diff)
			}
			if string(f.Pending()) != tt.pending {
				t.Errorf("Pending() = %q, want %q", f.Pending(), tt.pending)
			}
		})
	}
}

func TestFramer_LimitDropsOversizedTail(t *testing.T) {
	f := NewFramer(4)
	feedAll(t, f, "abc")

	pkts, err := f.Feed([]byte("\nxyzzy"))
	if !errors.Is(err, ErrBufferFull) {
		t.Fatalf("Feed() error = %v, want ErrBufferFull", err)
	}
	var got []string
	for _, p := range pkts {
		got = append(got, string(p))
	}
	if diff := cmp.Diff([]string{"abc\n"}, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d, want 0", f.Buffered())
	}

	got = feedAll(t, f, "ok\n")
	if diff := cmp.Diff([]string{"ok\n"}, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

func TestFramer_Reset(t *testing.T) {
	f := NewFramer(0)
	feedAll(t, f, "partial")
	f.Reset()
	if f.Buffered() != 0 {
		t.Fatalf("Buffered() after Reset = %d", f.Buffered())
	}
	got := feedAll(t, f, "x\n")
	if diff := cmp.Diff([]string{"x\n"}, got); diff != "" {
		t.Errorf("packets mismatch (-want +got):\n%s", diff)
	}
}

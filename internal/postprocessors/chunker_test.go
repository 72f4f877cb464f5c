package postprocessors

import (
	"strings"
	"testing"
)

func TestChunker_EmptyText(t *testing.T) {
	chunks := Chunk("", 20, 5)
	if chunks == nil || len(chunks) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", chunks)
	}
}

func TestChunker_SmallText(t *testing.T) {
	chunks := Chunk("Hello, world!", 100, 10)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	c := chunks[0]
	if c.Index != 0 || c.Start != 0 || c.End != 13 || c.Text != "Hello, world!" {
		t.Errorf("unexpected chunk %+v", c)
	}
}

func TestChunker_Scenario(t *testing.T) {
	chunks := Chunk("Alpha beta gamma. Delta epsilon zeta.", 20, 5)

	want := []struct {
		start, end int
		text       string
	}{
		{0, 20, "Alpha beta gamma. De"},
		{15, 35, "a. Delta epsilon zet"},
		{30, 37, "n zeta."},
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, w := range want {
		c := chunks[i]
		if c.Index != i || c.Start != w.start || c.End != w.end || c.Text != w.text {
			t.Errorf("chunk %d = %+v, want %+v", i, c, w)
		}
	}
}

func TestChunker_CoverageAndOverlap(t *testing.T) {
	texts := []string{
		strings.Repeat("abcdefghij", 37),
		"short",
		strings.Repeat("héllo wörld ", 50),
		"x",
	}
	params := []struct{ max, overlap int }{
		{1, 0}, {7, 0}, {7, 3}, {7, 6}, {100, 20}, {1200, 200},
	}

	for _, text := range texts {
		length := len([]rune(text))
		for _, p := range params {
			chunks := Chunk(text, p.max, p.overlap)
			if len(chunks) == 0 {
				t.Fatalf("max=%d overlap=%d: no chunks", p.max, p.overlap)
			}
			if chunks[0].Start != 0 {
				t.Errorf("max=%d overlap=%d: first chunk starts at %d", p.max, p.overlap, chunks[0].Start)
			}
			if last := chunks[len(chunks)-1]; last.End != length {
				t.Errorf("max=%d overlap=%d: last chunk ends at %d, want %d", p.max, p.overlap, last.End, length)
			}
			for i, c := range chunks {
				if c.End-c.Start > p.max {
					t.Errorf("chunk %d longer than %d", i, p.max)
				}
				if string([]rune(text)[c.Start:c.End]) != c.Text {
					t.Errorf("chunk %d text does not match its offsets", i)
				}
				if i == 0 {
					continue
				}
				prev := chunks[i-1]
				if c.Start > prev.End {
					t.Errorf("gap between chunk %d and %d", i-1, i)
				}
				if prev.End-c.Start != p.overlap {
					t.Errorf("max=%d: overlap between chunk %d and %d is %d, want %d",
						p.max, i-1, i, prev.End-c.Start, p.overlap)
				}
				if c.Start <= prev.Start {
					t.Errorf("chunk %d does not advance", i)
				}
			}
		}
	}
}

func TestChunker_ClampsOverlap(t *testing.T) {
	tests := []struct {
		name        string
		max         int
		overlap     int
		wantOverlap int
	}{
		{"negative overlap", 10, -5, 0},
		{"overlap equal to max", 10, 10, 9},
		{"overlap above max", 10, 50, 9},
		{"zero max", 0, 3, 0},
	}

	text := strings.Repeat("z", 40)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Chunk(text, tt.max, tt.overlap)
			if len(chunks) < 2 {
				t.Fatalf("expected multiple chunks, got %d", len(chunks))
			}
			if got := chunks[0].End - chunks[1].Start; got != tt.wantOverlap {
				t.Errorf("overlap = %d, want %d", got, tt.wantOverlap)
			}
		})
	}
}

func TestChunker_Deterministic(t *testing.T) {
	text := strings.Repeat("The quick brown fox. ", 100)
	c := NewChunker(DefaultChunkConfig())

	a := c.Chunk(text)
	b := c.Chunk(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs", i)
		}
	}
}

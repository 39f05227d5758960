package classify

import (
	"testing"

	"github.com/gossip-lsp/gutter/linediff"
)

// sampleEntries enumerates small well-formed entries.
func sampleEntries() []linediff.Change {
	var out []linediff.Change
	for os := 0; os < 3; os++ {
		for ol := 0; ol < 3; ol++ {
			for ms := 0; ms < 3; ms++ {
				for ml := 0; ml < 3; ml++ {
					if ol == 0 && ml == 0 {
						continue
					}
					out = append(out, linediff.Change{
						Type:           linediff.TypeOf(ol, ml),
						OriginalStart:  os,
						OriginalLength: ol,
						ModifiedStart:  ms,
						ModifiedLength: ml,
					})
				}
			}
		}
	}
	return out
}

func TestMergeCommutativeAndIdempotent(t *testing.T) {
	entries := sampleEntries()
	for _, a := range entries {
		if got := Merge(a, a); got != a {
			t.Fatalf("Merge(%v, %v) = %v", a, a, got)
		}
		for _, b := range entries {
			ab, ba := Merge(a, b), Merge(b, a)
			if ab != ba {
				t.Fatalf("Merge(%v, %v) = %v but reversed = %v", a, b, ab, ba)
			}
		}
	}
}

func TestMergeAssociative(t *testing.T) {
	entries := sampleEntries()
	for _, a := range entries {
		for _, b := range entries {
			for _, c := range entries {
				left := Merge(Merge(a, b), c)
				right := Merge(a, Merge(b, c))
				if left != right {
					t.Fatalf("(%v + %v) + %v = %v, but %v + (%v + %v) = %v", a, b, c, left, a, b, c, right)
				}
			}
		}
	}
}

func TestMergeRules(t *testing.T) {
	tests := []struct {
		name string
		a, b linediff.Change
		want linediff.Change
	}{
		{
			name: "adjacent changes keep type",
			a:    linediff.Change{Type: linediff.Modify, OriginalStart: 0, OriginalLength: 1, ModifiedStart: 0, ModifiedLength: 1},
			b:    linediff.Change{Type: linediff.Modify, OriginalStart: 1, OriginalLength: 1, ModifiedStart: 1, ModifiedLength: 1},
			want: linediff.Change{Type: linediff.Modify, OriginalStart: 0, OriginalLength: 2, ModifiedStart: 0, ModifiedLength: 2},
		},
		{
			name: "insert and delete become change",
			a:    linediff.Change{Type: linediff.Insert, OriginalStart: 2, ModifiedStart: 2, ModifiedLength: 1},
			b:    linediff.Change{Type: linediff.Delete, OriginalStart: 2, OriginalLength: 3, ModifiedStart: 3},
			want: linediff.Change{Type: linediff.Modify, OriginalStart: 2, OriginalLength: 3, ModifiedStart: 2, ModifiedLength: 1},
		},
		{
			name: "deletions at one point stay a delete",
			a:    linediff.Change{Type: linediff.Delete, OriginalStart: 0, OriginalLength: 1, ModifiedStart: 0},
			b:    linediff.Change{Type: linediff.Delete, OriginalStart: 3, OriginalLength: 1, ModifiedStart: 0},
			want: linediff.Change{Type: linediff.Delete, OriginalStart: 0, OriginalLength: 4, ModifiedStart: 0},
		},
		{
			name: "separated deletions become change",
			a:    linediff.Change{Type: linediff.Delete, OriginalStart: 0, OriginalLength: 1, ModifiedStart: 0},
			b:    linediff.Change{Type: linediff.Delete, OriginalStart: 2, OriginalLength: 1, ModifiedStart: 1},
			want: linediff.Change{Type: linediff.Modify, OriginalStart: 0, OriginalLength: 3, ModifiedStart: 0, ModifiedLength: 1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Merge(tt.a, tt.b); got != tt.want {
				t.Errorf("Merge = %v, want %v", got, tt.want)
			}
		})
	}
}

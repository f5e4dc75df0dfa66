package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitChunksSizes(t *testing.T) {
	tests := []struct {
		name  string
		items int
		n     int
		want  []int
	}{
		{"seven into two", 7, 2, []int{4, 3}},
		{"even split", 10, 2, []int{5, 5}},
		{"remainder spread", 10, 3, []int{4, 3, 3}},
		{"single worker", 5, 1, []int{5}},
		{"zero workers", 5, 0, []int{5}},
		{"negative workers", 5, -3, []int{5}},
		{"more workers than items", 3, 8, []int{1, 1, 1}},
		{"one item", 1, 4, []int{1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.items)
			for i := range items {
				items[i] = i
			}

			chunks := SplitChunks(items, tt.n)
			require.Len(t, chunks, len(tt.want))
			for i, chunk := range chunks {
				assert.Len(t, chunk, tt.want[i], "chunk %d", i)
			}
		})
	}
}

func TestSplitChunksPreservesOrder(t *testing.T) {
	items := make([]int, 23)
	for i := range items {
		items[i] = i
	}

	for n := 1; n <= 25; n++ {
		var flat []int
		for _, chunk := range SplitChunks(items, n) {
			flat = append(flat, chunk...)
		}
		assert.Equal(t, items, flat, "n=%d", n)
	}
}

func TestSplitChunksBalanced(t *testing.T) {
	items := make([]int, 100)
	for n := 2; n <= 100; n++ {
		chunks := SplitChunks(items, n)
		min, max := len(chunks[0]), len(chunks[0])
		for _, chunk := range chunks {
			if len(chunk) < min {
				min = len(chunk)
			}
			if len(chunk) > max {
				max = len(chunk)
			}
		}
		assert.LessOrEqual(t, max-min, 1, "n=%d", n)
	}
}

func TestSplitChunksEmpty(t *testing.T) {
	// Zero items means zero chunks, for any worker count.
	for _, n := range []int{-1, 0, 1, 2, 4} {
		assert.Empty(t, SplitChunks([]int{}, n), "n=%d", n)
		assert.Empty(t, SplitChunks[int](nil, n), "nil, n=%d", n)
	}
}

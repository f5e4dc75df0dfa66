package engine

// SplitChunks splits items into n contiguous, order-preserving chunks.
// The first len(items)%n chunks get one extra item, so chunk sizes never
// differ by more than one. Concatenating the chunks in order reproduces
// the input exactly — chunks are disjoint by construction, so each
// entry is processed by exactly one worker.
//
// Empty input yields no chunks. n <= 1 returns a single chunk with all
// items; n > len(items) returns len(items) single-item chunks.
func SplitChunks[T any](items []T, n int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if n <= 1 {
		return [][]T{items}
	}
	if n > len(items) {
		n = len(items)
	}

	k, r := len(items)/n, len(items)%n
	chunks := make([][]T, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		size := k
		if i < r {
			size++
		}
		chunks = append(chunks, items[start:start+size])
		start += size
	}
	return chunks
}

package sketch

import (
	"container/heap"

	"github.com/clarion-segmentation/clarion/pkg/models"
)

// CMS is a Count-Min Sketch frequency estimator with a companion
// bounded heap tracking provisional top-K keys.
type CMS struct {
	Width uint32
	Depth uint32
	rows  [][]uint64
	topK  *topKHeap
	kCap  int
}

// NewCMS builds a sketch of the given width and depth (suggested
// defaults: width=2048, depth=5), tracking up to kCap provisional
// top-K keys.
func NewCMS(width, depth uint32, kCap int) *CMS {
	rows := make([][]uint64, depth)
	for i := range rows {
		rows[i] = make([]uint64, width)
	}
	return &CMS{
		Width: width,
		Depth: depth,
		rows:  rows,
		topK:  newTopKHeap(),
		kCap:  kCap,
	}
}

// rowIndex derives one independent hash per row from the base 64-bit
// hash of the key, avoiding Depth separate hash computations over the
// key bytes.
func (c *CMS) rowIndex(row uint32, h uint64) uint32 {
	// Mix the row index into the hash (splitmix-style) so rows are
	// independent despite sharing one underlying digest.
	mixed := h + uint64(row)*0x9E3779B97F4A7C15
	mixed ^= mixed >> 33
	mixed *= 0xFF51AFD7ED558CCD
	mixed ^= mixed >> 33
	return uint32(mixed % uint64(c.Width))
}

// Add increments key's estimated count by delta and updates the
// top-K companion heap.
func (c *CMS) Add(key string, delta uint64) {
	h := hashString(key)
	min := ^uint64(0)
	for row := uint32(0); row < c.Depth; row++ {
		idx := c.rowIndex(row, h)
		c.rows[row][idx] += delta
		if c.rows[row][idx] < min {
			min = c.rows[row][idx]
		}
	}
	c.topK.observe(key, min, c.kCap)
}

// Estimate returns the minimum count across all rows for key, the
// standard CMS point estimate (an upper bound on true frequency).
func (c *CMS) Estimate(key string) uint64 {
	h := hashString(key)
	min := ^uint64(0)
	for row := uint32(0); row < c.Depth; row++ {
		idx := c.rowIndex(row, h)
		if c.rows[row][idx] < min {
			min = c.rows[row][idx]
		}
	}
	if min == ^uint64(0) {
		return 0
	}
	return min
}

// TopK returns up to k keys with the highest provisional counts seen by
// Add, descending by count.
func (c *CMS) TopK(k int) []models.KeyCount {
	return c.topK.topN(k)
}

// Merge folds other into c element-wise (add), requiring identical
// shape (width and depth). Merge is associative and commutative and
// never decreases any cell.
func (c *CMS) Merge(other *CMS) error {
	if other == nil {
		return nil
	}
	if other.Width != c.Width || other.Depth != c.Depth {
		return models.NewError(models.InvalidShape, "cms merge: shape mismatch", nil)
	}
	for row := uint32(0); row < c.Depth; row++ {
		for i := uint32(0); i < c.Width; i++ {
			c.rows[row][i] += other.rows[row][i]
		}
	}
	c.topK.mergeFrom(other.topK, c.kCap)
	return nil
}

// LoadRows replaces c's counter rows wholesale with pre-computed
// values from a deserialized wire payload. Shape must match c's
// configured width and depth; top-K state is not reconstructed from
// rows (callers merging a deserialized CMS lose provisional top-K
// candidates from before the load, which is acceptable since Merge
// recomputes top-K from the union of both sketches' heaps going
// forward).
func (c *CMS) LoadRows(rows [][]uint64) error {
	if uint32(len(rows)) != c.Depth {
		return models.NewError(models.InvalidShape, "cms load: depth mismatch", nil)
	}
	for i, row := range rows {
		if uint32(len(row)) != c.Width {
			return models.NewError(models.InvalidShape, "cms load: width mismatch", nil)
		}
		copy(c.rows[i], row)
	}
	return nil
}

// Clone returns an independent copy suitable for copy-on-read
// snapshots.
func (c *CMS) Clone() *CMS {
	rows := make([][]uint64, len(c.rows))
	for i, r := range c.rows {
		rows[i] = append([]uint64(nil), r...)
	}
	return &CMS{
		Width: c.Width,
		Depth: c.Depth,
		rows:  rows,
		topK:  c.topK.clone(),
		kCap:  c.kCap,
	}
}

// --- bounded top-K heap -----------------------------------------------

type topKEntry struct {
	key   string
	count uint64
}

type topKHeap struct {
	entries []topKEntry
	index   map[string]int
}

func newTopKHeap() *topKHeap {
	return &topKHeap{index: make(map[string]int)}
}

func (h *topKHeap) Len() int { return len(h.entries) }
func (h *topKHeap) Less(i, j int) bool {
	return h.entries[i].count < h.entries[j].count
}
func (h *topKHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
	h.index[h.entries[i].key] = i
	h.index[h.entries[j].key] = j
}
func (h *topKHeap) Push(x any) {
	e := x.(topKEntry)
	h.index[e.key] = len(h.entries)
	h.entries = append(h.entries, e)
}
func (h *topKHeap) Pop() any {
	n := len(h.entries)
	e := h.entries[n-1]
	h.entries = h.entries[:n-1]
	delete(h.index, e.key)
	return e
}

func (h *topKHeap) observe(key string, count uint64, cap int) {
	if i, ok := h.index[key]; ok {
		h.entries[i].count = count
		heap.Fix(h, i)
		return
	}
	if cap <= 0 {
		return
	}
	if h.Len() < cap {
		heap.Push(h, topKEntry{key: key, count: count})
		return
	}
	if h.Len() > 0 && count > h.entries[0].count {
		heap.Pop(h)
		heap.Push(h, topKEntry{key: key, count: count})
	}
}

func (h *topKHeap) mergeFrom(other *topKHeap, cap int) {
	if other == nil {
		return
	}
	for _, e := range other.entries {
		h.observe(e.key, e.count, cap)
	}
}

func (h *topKHeap) clone() *topKHeap {
	c := newTopKHeap()
	for _, e := range h.entries {
		c.entries = append(c.entries, e)
		c.index[e.key] = len(c.entries) - 1
	}
	return c
}

func (h *topKHeap) topN(n int) []models.KeyCount {
	entries := append([]topKEntry(nil), h.entries...)
	// simple descending insertion sort; bounded by kCap so this stays
	// cheap regardless of n
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].count > entries[j-1].count; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]models.KeyCount, n)
	for i := 0; i < n; i++ {
		out[i] = models.KeyCount{Key: entries[i].key, Count: entries[i].count}
	}
	return out
}

package repository

import (
	"math"
	"math/rand/v2"
)

// Treap-based index over one day's scores.
//
// Ordering: overall score DESC, then creator id ASC (deterministic).
// "less" means ranks earlier, so in-order traversal walks the day from best
// to worst. Subtree sizes make "how many are below x" an O(log n) query,
// which is what the percentile lookup needs.

type node struct {
	id    int64
	score int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) should appear before (bScore, bID).
func less(aScore int, aID int64, bScore int, bID int64) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	t2 := x.right
	x.right = y
	y.left = t2
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	t2 := y.left
	y.left = x
	x.right = t2
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id int64, score int) *node {
	if n == nil {
		return &node{id: id, score: score, prio: rand.Uint64(), size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id int64, score int) *node {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		// Merge children by rotating the higher priority up until leaf.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	} else if less(score, id, n.score, n.id) {
		n.left = deleteNode(n.left, id, score)
	} else {
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// countBelow returns how many nodes score strictly below threshold.
func countBelow(n *node, threshold float64) int {
	count := 0
	for n != nil {
		if float64(n.score) < threshold {
			// n and everything ranked after it are below.
			count += 1 + nsize(n.right)
			n = n.left
		} else {
			n = n.right
		}
	}
	return count
}

// collectRange appends, in rank order, up to limit ids whose score lies in
// [lo, hi] and which pass keep.
func collectRange(n *node, lo, hi, limit int, keep func(id int64) bool, out *[]int64) {
	if n == nil || len(*out) >= limit {
		return
	}
	// Left holds higher scores; skip it once we are above the range.
	if n.score <= hi {
		collectRange(n.left, lo, hi, limit, keep, out)
	}
	if len(*out) < limit && n.score >= lo && n.score <= hi && keep(n.id) {
		*out = append(*out, n.id)
	}
	if n.score >= lo {
		collectRange(n.right, lo, hi, limit, keep, out)
	}
}

// dayIndex is the ranked set of one day's scores.
type dayIndex struct {
	root   *node
	scores map[int64]int
}

func newDayIndex() *dayIndex {
	return &dayIndex{scores: make(map[int64]int)}
}

// set inserts or moves a creator to score.
func (d *dayIndex) set(id int64, score int) {
	if old, ok := d.scores[id]; ok {
		if old == score {
			return
		}
		d.root = deleteNode(d.root, id, old)
	}
	d.scores[id] = score
	d.root = insert(d.root, id, score)
}

func (d *dayIndex) len() int { return nsize(d.root) }

// below counts scores under threshold, leaving exclude out.
func (d *dayIndex) below(threshold float64, exclude int64) (below, total int) {
	below = countBelow(d.root, threshold)
	total = d.len()
	if old, ok := d.scores[exclude]; ok {
		total--
		if float64(old) < threshold {
			below--
		}
	}
	return below, total
}

func (d *dayIndex) top(limit int) []int64 {
	return d.rangeOf(math.MinInt, math.MaxInt, 0, limit)
}

func (d *dayIndex) rangeOf(lo, hi int, exclude int64, limit int) []int64 {
	out := make([]int64, 0, min(limit, d.len()))
	collectRange(d.root, lo, hi, limit, func(id int64) bool { return id != exclude }, &out)
	return out
}

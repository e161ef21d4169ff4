package geometry

import (
	"math"
	"sort"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/spatial/kdtree"
)

// tag is a point stored in the KD-tree together with its position in the
// caller's list.
type tag struct {
	r3.Vector
	Pos int
}

// Compare implements the kdtree.Comparable interface
func (p tag) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(tag)
	switch d {
	case 0:
		return p.X - q.X
	case 1:
		return p.Y - q.Y
	case 2:
		return p.Z - q.Z
	default:
		panic("illegal dimension")
	}
}

// Dims returns the number of dimensions for the KD-tree
func (p tag) Dims() int { return 3 }

// Distance returns the squared Euclidean distance between two points
func (p tag) Distance(c kdtree.Comparable) float64 {
	return p.Sub(c.(tag).Vector).Norm2()
}

// tags is a collection of tag that satisfies kdtree.Interface
type tags []tag

func (p tags) Index(i int) kdtree.Comparable         { return p[i] }
func (p tags) Len() int                              { return len(p) }
func (p tags) Slice(start, end int) kdtree.Interface { return p[start:end] }

func (p tags) Pivot(d kdtree.Dim) int {
	return kdtree.Partition(tagPlane{tags: p, Dim: d}, kdtree.MedianOfRandoms(tagPlane{tags: p, Dim: d}, 100))
}

// tagPlane implements sort.Interface and kdtree.SortSlicer for tags
type tagPlane struct {
	tags
	kdtree.Dim
}

func (p tagPlane) Less(i, j int) bool {
	switch p.Dim {
	case 0:
		return p.tags[i].X < p.tags[j].X
	case 1:
		return p.tags[i].Y < p.tags[j].Y
	case 2:
		return p.tags[i].Z < p.tags[j].Z
	default:
		panic("illegal dimension")
	}
}

func (p tagPlane) Slice(start, end int) kdtree.SortSlicer {
	return tagPlane{tags: p.tags[start:end], Dim: p.Dim}
}

func (p tagPlane) Swap(i, j int) {
	p.tags[i], p.tags[j] = p.tags[j], p.tags[i]
}

// Index answers proximity queries over a fixed list of tag points.
type Index struct {
	tree   *kdtree.Tree
	points []r3.Vector
}

// NewIndex builds a KD-tree over points. The input slice is not modified.
func NewIndex(points []r3.Vector) *Index {
	ts := make(tags, len(points))
	for i, p := range points {
		ts[i] = tag{Vector: p, Pos: i}
	}
	ix := &Index{points: append([]r3.Vector(nil), points...)}
	if len(ts) > 0 {
		ix.tree = kdtree.New(ts, true)
	}
	return ix
}

// Len returns the number of indexed points.
func (ix *Index) Len() int { return len(ix.points) }

// Nearest returns the position of the indexed point closest to q and its
// distance. It returns -1 and +Inf for an empty index.
func (ix *Index) Nearest(q r3.Vector) (int, float64) {
	if ix.tree == nil {
		return -1, math.Inf(1)
	}
	c, d2 := ix.tree.Nearest(tag{Vector: q})
	if c == nil {
		return -1, math.Inf(1)
	}
	return c.(tag).Pos, math.Sqrt(d2)
}

// Within returns the positions of all indexed points no further than radius
// from q, in ascending position order.
func (ix *Index) Within(q r3.Vector, radius float64) []int {
	if ix.tree == nil {
		return nil
	}
	keeper := kdtree.NewDistKeeper(radius * radius)
	ix.tree.NearestSet(keeper, tag{Vector: q})

	var found []int
	for _, cd := range keeper.Heap {
		// The keeper seeds its heap with a sentinel carrying no point.
		if cd.Comparable == nil {
			continue
		}
		found = append(found, cd.Comparable.(tag).Pos)
	}
	sort.Ints(found)
	return found
}

// Duplicates reports every pair (i, j), i < j, of indexed points closer
// than tol to each other. The pairs are returned in ascending order of i.
func (ix *Index) Duplicates(tol float64) [][2]int {
	var pairs [][2]int
	for i, p := range ix.points {
		for _, j := range ix.Within(p, tol) {
			if j > i {
				pairs = append(pairs, [2]int{i, j})
			}
		}
	}
	return pairs
}

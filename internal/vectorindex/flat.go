// Package vectorindex implements an append-only, exact nearest-neighbor index
// over fixed-dimension float32 vectors using squared Euclidean distance.
//
// Vectors are identified by their insertion position. There is no remove
// operation: callers that delete documents must filter ids themselves.
// A Flat index is not safe for concurrent use; callers serialize access.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/emirpasic/gods/trees/binaryheap"
)

var (
	// ErrInvalidDimension is returned when creating an index with dim <= 0
	ErrInvalidDimension = errors.New("dimension must be positive")
	// ErrWrongDimension is returned when a vector length differs from the index dimension
	ErrWrongDimension = errors.New("vector has wrong dimension")
	// ErrInvalidVector is returned for vectors holding NaN or Inf components
	ErrInvalidVector = errors.New("vector contains NaN or Inf")
	// ErrInvalidK is returned when k <= 0
	ErrInvalidK = errors.New("k must be positive")
)

// Neighbor is one search hit
type Neighbor struct {
	ID       int64
	Distance float32 // Squared L2 distance to the query
}

// Flat stores vectors contiguously and scans all of them on every search
type Flat struct {
	dim  int
	data []float32 // Row-major, len = dim * size
}

// NewFlat creates an empty index for vectors of length dim
func NewFlat(dim int) (*Flat, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDimension, dim)
	}
	return &Flat{dim: dim}, nil
}

// Dimension returns the vector length the index accepts
func (f *Flat) Dimension() int {
	return f.dim
}

// Size returns the number of stored vectors, which is also the next id
func (f *Flat) Size() int {
	return len(f.data) / f.dim
}

// Add appends vec and returns its id
func (f *Flat) Add(vec []float32) (int64, error) {
	if err := f.check(vec); err != nil {
		return 0, err
	}
	id := int64(f.Size())
	f.data = append(f.data, vec...)
	return id, nil
}

// Vector returns a copy of the stored vector with the given id
func (f *Flat) Vector(id int64) ([]float32, bool) {
	if id < 0 || id >= int64(f.Size()) {
		return nil, false
	}
	out := make([]float32, f.dim)
	copy(out, f.row(id))
	return out, true
}

// Search returns up to k nearest vectors ordered by ascending distance.
// Equal distances are ordered by ascending id.
func (f *Flat) Search(query []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidK, k)
	}
	if err := f.check(query); err != nil {
		return nil, err
	}

	size := f.Size()
	if size == 0 {
		return []Neighbor{}, nil
	}
	if k > size {
		k = size
	}

	// Max-heap on (distance, id): the root is the worst neighbor kept so far
	worst := binaryheap.NewWith(func(a, b interface{}) int {
		return -compareNeighbors(a.(Neighbor), b.(Neighbor))
	})

	for i := 0; i < size; i++ {
		n := Neighbor{ID: int64(i), Distance: squaredL2(query, f.row(int64(i)))}
		if worst.Size() < k {
			worst.Push(n)
			continue
		}
		top, _ := worst.Peek()
		if compareNeighbors(n, top.(Neighbor)) < 0 {
			worst.Pop()
			worst.Push(n)
		}
	}

	out := make([]Neighbor, 0, worst.Size())
	for _, v := range worst.Values() {
		out = append(out, v.(Neighbor))
	}
	sort.Slice(out, func(i, j int) bool {
		return compareNeighbors(out[i], out[j]) < 0
	})
	return out, nil
}

func (f *Flat) row(id int64) []float32 {
	start := int(id) * f.dim
	return f.data[start : start+f.dim]
}

func (f *Flat) check(vec []float32) error {
	if len(vec) != f.dim {
		return fmt.Errorf("%w: got %d, want %d", ErrWrongDimension, len(vec), f.dim)
	}
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

func compareNeighbors(a, b Neighbor) int {
	switch {
	case a.Distance < b.Distance:
		return -1
	case a.Distance > b.Distance:
		return 1
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}

// squaredL2 returns the squared Euclidean distance between a and b
func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// Package vectorindex holds the item embedding matrix used for
// recommendation: a flat, exhaustively searched inner-product index, its
// on-disk .vidx format, and a Holder that lets query paths swap to a rebuilt
// index without blocking.
package vectorindex

import (
	"fmt"
	"sort"

	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// Metric identifies the similarity function an index was built for.
type Metric uint32

const (
	MetricInnerProduct Metric = 1
)

func (m Metric) String() string {
	switch m {
	case MetricInnerProduct:
		return "inner_product"
	default:
		return fmt.Sprintf("metric(%d)", uint32(m))
	}
}

// Hit is one search result: the row id of the item and its score.
type Hit struct {
	ID    int
	Score float32
}

// Index is a row-major N×d float32 matrix. Row i is the embedding of catalog
// item i. An Index is not safe for concurrent Add; once built it is only
// read and may be shared freely.
type Index struct {
	dim  int
	data []float32
}

// New creates an empty index for vectors of the given dimension.
func New(dim int) *Index {
	return &Index{dim: dim}
}

// FromVectors builds an index from rows that must all share one dimension.
func FromVectors(vectors [][]float32) (*Index, error) {
	if len(vectors) == 0 {
		return nil, apperrors.Shapef("no vectors")
	}
	idx := New(len(vectors[0]))
	idx.data = make([]float32, 0, len(vectors)*idx.dim)
	for _, v := range vectors {
		if err := idx.Add(v); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Add appends one row.
func (x *Index) Add(vec []float32) error {
	if x.dim <= 0 {
		return apperrors.Shapef("index dimension %d is not positive", x.dim)
	}
	if len(vec) != x.dim {
		return apperrors.Shapef("vector %d has dimension %d, index has %d", x.Len(), len(vec), x.dim)
	}
	x.data = append(x.data, vec...)
	return nil
}

func (x *Index) Len() int {
	if x.dim == 0 {
		return 0
	}
	return len(x.data) / x.dim
}

func (x *Index) Dim() int {
	return x.dim
}

// Vector returns a copy of row i.
func (x *Index) Vector(i int) []float32 {
	out := make([]float32, x.dim)
	copy(out, x.row(i))
	return out
}

// Vectors returns a copy of every row in catalog order.
func (x *Index) Vectors() [][]float32 {
	n := x.Len()
	out := make([][]float32, n)
	for i := 0; i < n; i++ {
		out[i] = x.Vector(i)
	}
	return out
}

func (x *Index) row(i int) []float32 {
	return x.data[i*x.dim : (i+1)*x.dim]
}

// Search returns the k rows with the largest inner product against query,
// best first. Equal scores are ordered by ascending id.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if len(query) != x.dim {
		return nil, apperrors.Shapef("query has dimension %d, index has %d", len(query), x.dim)
	}
	n := x.Len()
	if k <= 0 || n == 0 {
		return nil, nil
	}
	hits := make([]Hit, n)
	for i := 0; i < n; i++ {
		hits[i] = Hit{ID: i, Score: dot(query, x.row(i))}
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].ID < hits[b].ID
	})
	if k < n {
		hits = hits[:k]
	}
	return hits, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

package adjust

import (
	"github.com/Adithya-Monish-Kumar-K/movie-recommender/internal/vectorindex"
	apperrors "github.com/Adithya-Monish-Kumar-K/movie-recommender/pkg/errors"
)

// Scale returns a new index whose row i is vectors[i] scaled by m[i]. Every
// row must have the dimension of the first one and there must be exactly one
// multiplier per row.
func Scale(vectors [][]float32, m Multipliers) (*vectorindex.Index, error) {
	if len(vectors) == 0 {
		return nil, apperrors.Shapef("no vectors to rebuild")
	}
	if len(m) != len(vectors) {
		return nil, apperrors.Shapef("%d multipliers for %d vectors", len(m), len(vectors))
	}
	dim := len(vectors[0])
	idx := vectorindex.New(dim)
	row := make([]float32, dim)
	for i, v := range vectors {
		if len(v) != dim {
			return nil, apperrors.Shapef("vector %d has dimension %d, want %d", i, len(v), dim)
		}
		for j, x := range v {
			row[j] = float32(float64(x) * m[i])
		}
		if err := idx.Add(row); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// Rebuild scales vectors by m and installs the result at outputPath
// atomically, returning the number of vectors written. Shape errors are
// detected before anything touches disk.
func Rebuild(vectors [][]float32, m Multipliers, outputPath string) (int, error) {
	idx, err := Scale(vectors, m)
	if err != nil {
		return 0, err
	}
	if err := vectorindex.WriteFile(outputPath, idx); err != nil {
		return 0, err
	}
	return idx.Len(), nil
}

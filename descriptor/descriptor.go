// Package descriptor provides local feature descriptor vectors and the
// operations the localization core performs on them: normalization, the root
// transform, a frozen PCA projection fit once on the reference database, and
// exhaustive nearest-neighbor search under Euclidean distance.
package descriptor

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// Descriptor is a local feature descriptor of fixed dimensionality.
type Descriptor []float64

// Normalize returns a copy of d scaled to unit L2 norm. A zero vector is
// returned unchanged.
func Normalize(d Descriptor) Descriptor {
	out := make(Descriptor, len(d))
	norm := floats.Norm(d, 2)
	if norm == 0 {
		copy(out, d)
		return out
	}
	floats.AddScaledTo(out, out, 1./norm, d)
	return out
}

// NormalizeSet normalizes every descriptor in the set.
func NormalizeSet(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, len(ds))
	for i, d := range ds {
		out[i] = Normalize(d)
	}
	return out
}

// Root applies the root transform: L1-normalize, then take the element-wise
// signed square root. Distances between rooted descriptors approximate the
// Hellinger kernel on the originals.
func Root(d Descriptor) Descriptor {
	out := make(Descriptor, len(d))
	norm := floats.Norm(d, 1)
	if norm == 0 {
		copy(out, d)
		return out
	}
	for i, v := range d {
		out[i] = math.Copysign(math.Sqrt(math.Abs(v)/norm), v)
	}
	return out
}

// RootSet applies the root transform to every descriptor in the set.
func RootSet(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, len(ds))
	for i, d := range ds {
		out[i] = Root(d)
	}
	return out
}

// EuclideanDistance computes the euclidean distance between 2 descriptors.
func EuclideanDistance(p1, p2 Descriptor) (float64, error) {
	if len(p1) != len(p2) {
		return -1, errors.Errorf("descriptors must have same length, got %d and %d", len(p1), len(p2))
	}
	diff := make([]float64, len(p1))
	floats.SubTo(diff, p1, p2)
	// squared diff vector
	floats.Mul(diff, diff)
	// sum squared components
	distSquared := floats.Sum(diff)

	return math.Sqrt(distSquared), nil
}

// TwoNearest returns the indices of the two nearest neighbors of query in the
// pool under Euclidean distance, together with their distances. The pool must
// contain at least 2 descriptors.
func TwoNearest(query Descriptor, pool []Descriptor) (int, int, float64, float64, error) {
	if len(pool) < 2 {
		return -1, -1, 0, 0, errors.Errorf("need at least 2 pool descriptors, got %d", len(pool))
	}
	best, second := -1, -1
	dBest, dSecond := math.Inf(1), math.Inf(1)
	for i, p := range pool {
		d, err := EuclideanDistance(query, p)
		if err != nil {
			return -1, -1, 0, 0, err
		}
		switch {
		case d < dBest:
			second, dSecond = best, dBest
			best, dBest = i, d
		case d < dSecond:
			second, dSecond = i, d
		}
	}
	return best, second, dBest, dSecond, nil
}

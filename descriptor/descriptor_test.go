package descriptor

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/floats"
)

func TestNormalize(t *testing.T) {
	d := Normalize(Descriptor{3, 4})
	test.That(t, d[0], test.ShouldAlmostEqual, 0.6, 1e-12)
	test.That(t, d[1], test.ShouldAlmostEqual, 0.8, 1e-12)

	zero := Normalize(Descriptor{0, 0})
	test.That(t, zero, test.ShouldResemble, Descriptor{0, 0})
}

func TestRoot(t *testing.T) {
	d := Root(Descriptor{4, 0})
	test.That(t, d[0], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, d[1], test.ShouldAlmostEqual, 0, 1e-12)

	// sign is preserved
	d = Root(Descriptor{-4, 4})
	test.That(t, d[0], test.ShouldAlmostEqual, -math.Sqrt(0.5), 1e-12)
	test.That(t, d[1], test.ShouldAlmostEqual, math.Sqrt(0.5), 1e-12)
}

func TestEuclideanDistance(t *testing.T) {
	d, err := EuclideanDistance(Descriptor{0, 0}, Descriptor{3, 4})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, 5, 1e-12)

	_, err = EuclideanDistance(Descriptor{0}, Descriptor{0, 1})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestTwoNearest(t *testing.T) {
	pool := []Descriptor{{5, 0}, {1, 0}, {2, 0}}
	best, second, dBest, dSecond, err := TwoNearest(Descriptor{0, 0}, pool)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, best, test.ShouldEqual, 1)
	test.That(t, second, test.ShouldEqual, 2)
	test.That(t, dBest, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, dSecond, test.ShouldAlmostEqual, 2, 1e-12)

	_, _, _, _, err = TwoNearest(Descriptor{0, 0}, pool[:1])
	test.That(t, err, test.ShouldNotBeNil)
}

func TestFitPreprocessorNoPCA(t *testing.T) {
	refs := []Descriptor{{2, 0, 0}, {0, 2, 0}}
	p, transformed, err := FitPreprocessor(refs, &PreprocessConfig{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, transformed[0], test.ShouldResemble, Descriptor{1, 0, 0})
	test.That(t, transformed[1], test.ShouldResemble, Descriptor{0, 1, 0})

	// the frozen transform applies the same operations to query descriptors
	q := p.Apply(Descriptor{0, 0, 3})
	test.That(t, q, test.ShouldResemble, Descriptor{0, 0, 1})
}

func TestFitPreprocessorRoot(t *testing.T) {
	refs := []Descriptor{{4, 0}, {0, 4}}
	p, transformed, err := FitPreprocessor(refs, &PreprocessConfig{Root: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, transformed[0][0], test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, p.Apply(Descriptor{0, 4})[1], test.ShouldAlmostEqual, 1, 1e-12)
}

func TestFitPreprocessorPCA(t *testing.T) {
	refs := []Descriptor{
		{1, 0.1, 0}, {0.9, -0.1, 0.05}, {1.1, 0.05, -0.05},
		{-1, 0.1, 0}, {-0.9, -0.05, 0.05}, {-1.1, 0, 0},
		{0.95, 0.02, 0.01}, {-1.05, 0.03, -0.02},
	}
	p, transformed, err := FitPreprocessor(refs, &PreprocessConfig{PCADim: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(transformed), test.ShouldEqual, len(refs))
	for _, d := range transformed {
		test.That(t, len(d), test.ShouldEqual, 2)
		test.That(t, floats.Norm(d, 2), test.ShouldAlmostEqual, 1, 1e-9)
	}
	// frozen: applying twice to the same input gives the same output
	a := p.Apply(refs[0])
	b := p.Apply(refs[0])
	test.That(t, a, test.ShouldResemble, b)
}

func TestFitPreprocessorInvalid(t *testing.T) {
	_, _, err := FitPreprocessor(nil, &PreprocessConfig{})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = FitPreprocessor([]Descriptor{{1, 0}}, &PreprocessConfig{PCADim: 5})
	test.That(t, err, test.ShouldNotBeNil)

	_, _, err = FitPreprocessor([]Descriptor{{1, 0}}, &PreprocessConfig{PCADim: -1})
	test.That(t, err, test.ShouldNotBeNil)
}

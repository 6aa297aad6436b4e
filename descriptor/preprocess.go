package descriptor

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PreprocessConfig controls the frozen transform applied to descriptors
// before matching.
type PreprocessConfig struct {
	// PCADim is the output dimensionality of the PCA projection. Zero
	// disables the projection.
	PCADim int `json:"pca_dim"`
	// Root applies the root transform before normalization.
	Root bool `json:"root"`
}

// CheckValid checks if the fields for PreprocessConfig have valid inputs.
func (cfg *PreprocessConfig) CheckValid() error {
	if cfg == nil {
		return errors.New("preprocess config is nil")
	}
	if cfg.PCADim < 0 {
		return errors.Errorf("pca_dim must be >= 0, got %d", cfg.PCADim)
	}
	return nil
}

// Preprocessor is a transform fit once on the reference descriptors and then
// frozen. It is applied to both reference and query descriptors so that the
// two sides are comparable.
type Preprocessor struct {
	root bool
	mean []float64
	// proj is the d x k matrix of principal components, nil if PCA is
	// disabled.
	proj *mat.Dense
}

// FitPreprocessor fits the transform on the reference descriptors and returns
// it along with the transformed references.
func FitPreprocessor(refs []Descriptor, cfg *PreprocessConfig) (*Preprocessor, []Descriptor, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, nil, err
	}
	if len(refs) == 0 {
		return nil, nil, errors.New("cannot fit preprocessor on empty reference set")
	}
	dim := len(refs[0])
	p := &Preprocessor{root: cfg.Root}
	if cfg.PCADim > 0 {
		if cfg.PCADim > dim {
			return nil, nil, errors.Errorf("pca_dim %d exceeds descriptor dimension %d", cfg.PCADim, dim)
		}
		if cfg.PCADim > len(refs) {
			return nil, nil, errors.Errorf("pca_dim %d exceeds reference set size %d", cfg.PCADim, len(refs))
		}
		normalized := NormalizeSet(refs)
		if cfg.Root {
			normalized = NormalizeSet(RootSet(refs))
		}
		x := mat.NewDense(len(normalized), dim, nil)
		p.mean = make([]float64, dim)
		for i, d := range normalized {
			x.SetRow(i, d)
			for j, v := range d {
				p.mean[j] += v
			}
		}
		for j := range p.mean {
			p.mean[j] /= float64(len(normalized))
		}
		var pc stat.PC
		if ok := pc.PrincipalComponents(x, nil); !ok {
			return nil, nil, errors.New("failed to compute principal components of reference descriptors")
		}
		var vecs mat.Dense
		pc.VectorsTo(&vecs)
		p.proj = mat.DenseCopyOf(vecs.Slice(0, dim, 0, cfg.PCADim))
	}
	out := make([]Descriptor, len(refs))
	for i, d := range refs {
		out[i] = p.Apply(d)
	}
	return p, out, nil
}

// Apply runs the frozen transform on one descriptor: optional root transform,
// L2 normalization, then the optional centered PCA projection followed by
// renormalization.
func (p *Preprocessor) Apply(d Descriptor) Descriptor {
	out := d
	if p.root {
		out = Root(out)
	}
	out = Normalize(out)
	if p.proj != nil {
		centered := make([]float64, len(out))
		for i, v := range out {
			centered[i] = v - p.mean[i]
		}
		_, k := p.proj.Dims()
		projected := mat.NewVecDense(k, nil)
		projected.MulVec(p.proj.T(), mat.NewVecDense(len(centered), centered))
		out = Normalize(Descriptor(projected.RawVector().Data))
	}
	return out
}

// ApplySet runs the frozen transform on a set of descriptors.
func (p *Preprocessor) ApplySet(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, len(ds))
	for i, d := range ds {
		out[i] = p.Apply(d)
	}
	return out
}

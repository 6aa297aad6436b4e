package pose

import (
	"context"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/vitalemonate/hfnet/camera"
)

// Config contains the thresholds of the pose acceptance policy.
type Config struct {
	// ReprojError is the pixel threshold for inlier classification. Must be
	// positive.
	ReprojError float64 `json:"reproj_error"`
	// MinInliers is the floor on the absolute inlier count.
	MinInliers int `json:"min_inliers"`
	// MinInlierRatio is the floor on inliers / correspondences, in [0, 1].
	MinInlierRatio float64 `json:"min_inlier_ratio"`
	// AdditionalMinInliers, when positive, overrides the two floors above: an
	// inlier count at or above it accepts the pose regardless of the ratio.
	AdditionalMinInliers int `json:"additional_min_inliers"`
	// MaxIterations caps the RANSAC loop. Zero selects the default of 5000.
	MaxIterations int `json:"max_iterations"`
	// Seed initializes the random source of the default solver.
	Seed int64 `json:"seed"`
}

const defaultMaxIterations = 5000

// CheckValid checks if the fields for Config have valid inputs.
func (cfg *Config) CheckValid() error {
	if cfg == nil {
		return errors.New("pose config is nil")
	}
	if cfg.ReprojError <= 0 {
		return errors.Errorf("reproj_error must be positive, got %f", cfg.ReprojError)
	}
	if cfg.MinInliers < 0 {
		return errors.Errorf("min_inliers must be >= 0, got %d", cfg.MinInliers)
	}
	if cfg.MinInlierRatio < 0 || cfg.MinInlierRatio > 1 {
		return errors.Errorf("min_inlier_ratio must be in [0, 1], got %f", cfg.MinInlierRatio)
	}
	if cfg.AdditionalMinInliers < 0 {
		return errors.Errorf("additional_min_inliers must be >= 0, got %d", cfg.AdditionalMinInliers)
	}
	if cfg.MaxIterations < 0 {
		return errors.Errorf("max_iterations must be >= 0, got %d", cfg.MaxIterations)
	}
	return nil
}

// Result reports the outcome of one localization attempt.
type Result struct {
	Success     bool
	NumInliers  int
	InlierRatio float64
	// Pose is the query camera's pose expressed in the world frame, nil
	// unless Success.
	Pose *Pose
}

// Estimator computes a robust camera pose from 2D-3D correspondences and
// applies the acceptance policy.
type Estimator struct {
	cfg    *Config
	solver Solver
	logger golog.Logger
}

// NewEstimator validates the config and returns an estimator backed by the
// default DLT solver.
func NewEstimator(cfg *Config, logger golog.Logger) (*Estimator, error) {
	return NewEstimatorWithSolver(cfg, NewDLTSolver(cfg.Seed, logger), logger)
}

// NewEstimatorWithSolver validates the config and returns an estimator
// delegating to the given solver.
func NewEstimatorWithSolver(cfg *Config, solver Solver, logger golog.Logger) (*Estimator, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, err
	}
	return &Estimator{cfg: cfg, solver: solver, logger: logger}, nil
}

// Estimate computes the query camera's pose from keypoint/landmark
// correspondences. Keypoints are observed (distorted) pixels; they are
// undistorted through the camera model before solving. Expected failures
// (too few correspondences, no RANSAC consensus, thresholds not met) come
// back as a Result with Success false and a nil error; a non-nil error means
// cancellation, invalid input, or a solver invariant violation.
func (e *Estimator) Estimate(
	ctx context.Context,
	keypoints []r2.Point,
	landmarks []r3.Vector,
	cam *camera.Model,
) (*Result, []int, error) {
	if len(keypoints) != len(landmarks) {
		return nil, nil, errors.Errorf("have %d keypoints but %d landmarks", len(keypoints), len(landmarks))
	}
	if err := cam.CheckValid(); err != nil {
		return nil, nil, err
	}
	failure := &Result{}
	if len(keypoints) < minPnPPoints {
		return failure, []int{}, nil
	}

	undistorted := make([]r2.Point, len(keypoints))
	for i, kp := range keypoints {
		undistorted[i] = cam.Undistort(kp)
	}

	maxIterations := e.cfg.MaxIterations
	if maxIterations == 0 {
		maxIterations = defaultMaxIterations
	}
	ransacCfg := &RansacConfig{MaxIterations: maxIterations, ReprojError: e.cfg.ReprojError}
	ok, raw, inliers, err := e.solver.RobustEstimate(ctx, undistorted, landmarks, &cam.Intrinsics, ransacCfg)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return failure, []int{}, nil
	}

	numInliers := len(inliers)
	inlierRatio := float64(numInliers) / float64(len(keypoints))
	accepted := numInliers >= e.cfg.MinInliers && inlierRatio >= e.cfg.MinInlierRatio
	if e.cfg.AdditionalMinInliers > 0 && numInliers >= e.cfg.AdditionalMinInliers {
		accepted = true
	}
	if !accepted {
		e.logger.Debugw("pose rejected by acceptance policy",
			"inliers", numInliers, "ratio", inlierRatio,
			"min_inliers", e.cfg.MinInliers, "min_inlier_ratio", e.cfg.MinInlierRatio)
		return &Result{NumInliers: numInliers, InlierRatio: inlierRatio}, inliers, nil
	}

	inlier2D := make([]r2.Point, numInliers)
	inlier3D := make([]r3.Vector, numInliers)
	for i, idx := range inliers {
		inlier2D[i] = undistorted[idx]
		inlier3D[i] = landmarks[idx]
	}
	refined, err := e.solver.Refine(inlier2D, inlier3D, &cam.Intrinsics, raw)
	if err != nil {
		return nil, nil, err
	}

	// The solver produces the world-to-camera transform; report the camera's
	// pose in the world frame.
	return &Result{
		Success:     true,
		NumInliers:  numInliers,
		InlierRatio: inlierRatio,
		Pose:        refined.Inverse(),
	}, inliers, nil
}

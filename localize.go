// Package hfnet implements the query-time core of a visual place-recognition
// pipeline: covisibility clustering of candidate reference frames into
// places, matching of query descriptors against a place's descriptor pool,
// and robust perspective-n-point pose estimation from the resulting 2D-3D
// correspondences.
package hfnet

import (
	"context"
	"sync"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/vitalemonate/hfnet/camera"
	"github.com/vitalemonate/hfnet/covisibility"
	"github.com/vitalemonate/hfnet/descriptor"
	"github.com/vitalemonate/hfnet/localdb"
	"github.com/vitalemonate/hfnet/matching"
	"github.com/vitalemonate/hfnet/pose"
)

// Query is one localization request: preprocessed query descriptors, their
// pixel keypoints (parallel slices) and the query camera model.
type Query struct {
	Descriptors []descriptor.Descriptor
	Keypoints   []r2.Point
	Camera      *camera.Model
}

// CheckValid checks that the query slices are parallel and the camera model
// is usable.
func (q *Query) CheckValid() error {
	if q == nil {
		return errors.New("query is nil")
	}
	if len(q.Descriptors) != len(q.Keypoints) {
		return errors.Errorf("query descriptors and keypoints must be parallel, got %d and %d",
			len(q.Descriptors), len(q.Keypoints))
	}
	return q.Camera.CheckValid()
}

// PlaceResult is the outcome of a localization attempt against one place.
type PlaceResult struct {
	Place   covisibility.Place
	Matches []matching.Match
	Result  *pose.Result
	Inliers []int
}

// LocalizePlace matches the query against one place and attempts pose
// estimation on the resulting correspondences.
func LocalizePlace(
	ctx context.Context,
	place covisibility.Place,
	db localdb.Database,
	query *Query,
	cfg *PipelineConfig,
	logger golog.Logger,
) (*PlaceResult, error) {
	if err := query.CheckValid(); err != nil {
		return nil, err
	}
	matches, pool, err := matching.MatchAgainstPlace(place, db, query.Descriptors, cfg.Matching)
	if err != nil {
		return nil, err
	}

	keypoints := make([]r2.Point, 0, len(matches))
	landmarks := make([]r3.Vector, 0, len(matches))
	kept := make([]matching.Match, 0, len(matches))
	for _, m := range matches {
		lm := pool.LandmarkIDs[m.PoolIdx]
		landmark, ok := db.Landmark(lm)
		if !ok {
			logger.Debugw("matched landmark not in database", "landmark", lm)
			continue
		}
		keypoints = append(keypoints, query.Keypoints[m.QueryIdx])
		landmarks = append(landmarks, landmark.Position)
		kept = append(kept, m)
	}

	estimator, err := pose.NewEstimator(cfg.Pose, logger)
	if err != nil {
		return nil, err
	}
	result, inliers, err := estimator.Estimate(ctx, keypoints, landmarks, query.Camera)
	if err != nil {
		return nil, err
	}
	return &PlaceResult{
		Place:   place,
		Matches: kept,
		Result:  result,
		Inliers: inliers,
	}, nil
}

// Localize clusters the candidate frames into places and attempts
// localization against each in descending-size order, returning on the first
// success. On total failure the result of the last attempted place is
// returned with Success false.
func Localize(
	ctx context.Context,
	candidateFrames []int64,
	db localdb.Database,
	query *Query,
	cfg *PipelineConfig,
	logger golog.Logger,
) (*PlaceResult, error) {
	places, err := covisibility.Cluster(candidateFrames, db)
	if err != nil {
		return nil, err
	}
	var last *PlaceResult
	for _, place := range places {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		placeResult, err := LocalizePlace(ctx, place, db, query, cfg, logger)
		if err != nil {
			return nil, err
		}
		if placeResult.Result.Success {
			return placeResult, nil
		}
		last = placeResult
	}
	if last == nil {
		return &PlaceResult{Result: &pose.Result{}}, nil
	}
	return last, nil
}

// LocalizeParallel evaluates all places concurrently. Places are independent,
// so results are identical to Localize up to which failing place is reported:
// the first success in descending-size order wins, and on total failure the
// last place's result is returned.
func LocalizeParallel(
	ctx context.Context,
	candidateFrames []int64,
	db localdb.Database,
	query *Query,
	cfg *PipelineConfig,
	logger golog.Logger,
) (*PlaceResult, error) {
	places, err := covisibility.Cluster(candidateFrames, db)
	if err != nil {
		return nil, err
	}
	if len(places) == 0 {
		return &PlaceResult{Result: &pose.Result{}}, nil
	}
	results := make([]*PlaceResult, len(places))
	errs := make([]error, len(places))
	var wg sync.WaitGroup
	for i, place := range places {
		i, place := i, place
		wg.Add(1)
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			results[i], errs[i] = LocalizePlace(ctx, place, db, query, cfg, logger)
		})
	}
	wg.Wait()
	if err := multierr.Combine(errs...); err != nil {
		return nil, err
	}
	for _, placeResult := range results {
		if placeResult.Result.Success {
			return placeResult, nil
		}
	}
	return results[len(results)-1], nil
}

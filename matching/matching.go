// Package matching matches query descriptors against the pooled descriptors
// of one place. A nearest-neighbor match is accepted when the two nearest
// pool descriptors refer to the same landmark, or when it passes a strict
// distance-ratio test.
package matching

import (
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/vitalemonate/hfnet/descriptor"
	"github.com/vitalemonate/hfnet/localdb"
)

var logger = golog.NewLogger("matching")

// Config contains the parameters for matching against a place.
type Config struct {
	// RatioThreshold is the strict upper bound on the nearest/second-nearest
	// distance ratio. Legal range is (0, 1).
	RatioThreshold float64 `json:"ratio_threshold"`
	// ExpandObservations enlarges the pool with observations of the place's
	// landmarks from frames outside the place.
	ExpandObservations bool `json:"expand_observations"`
}

// CheckValid checks if the fields for Config have valid inputs.
func (cfg *Config) CheckValid() error {
	if cfg == nil {
		return errors.New("matching config is nil")
	}
	if cfg.RatioThreshold <= 0 || cfg.RatioThreshold >= 1 {
		return errors.Errorf("ratio_threshold must be in (0, 1), got %f", cfg.RatioThreshold)
	}
	return nil
}

// Match pairs a query descriptor index with a pool descriptor index.
type Match struct {
	QueryIdx int
	PoolIdx  int
}

// Pool is the concatenated descriptor set of a place. FrameIDs and
// KeypointIdxs record, per pool entry, the originating frame and the keypoint
// index within it.
type Pool struct {
	Descriptors  []descriptor.Descriptor
	LandmarkIDs  []int64
	FrameIDs     []int64
	KeypointIdxs []int
}

// Size returns the number of descriptors in the pool.
func (p *Pool) Size() int {
	return len(p.Descriptors)
}

// BuildPool concatenates the descriptors and landmark ids of the place
// frames, preserving provenance. With expand set, every distinct landmark in
// the pool additionally contributes the matching descriptor of each observing
// frame outside the place, without adding those frames to the place.
func BuildPool(placeFrames []int64, db localdb.Database, expand bool) (*Pool, error) {
	pool := &Pool{}
	inPlace := make(map[int64]bool, len(placeFrames))
	for _, frameID := range placeFrames {
		inPlace[frameID] = true
	}
	for _, frameID := range placeFrames {
		frame, ok := db.Frame(frameID)
		if !ok {
			return nil, errors.Errorf("place frame %d not in database", frameID)
		}
		pool.Descriptors = append(pool.Descriptors, frame.Descriptors...)
		pool.LandmarkIDs = append(pool.LandmarkIDs, frame.LandmarkIDs...)
		for i := range frame.Descriptors {
			pool.FrameIDs = append(pool.FrameIDs, frameID)
			pool.KeypointIdxs = append(pool.KeypointIdxs, i)
		}
	}
	if !expand {
		return pool, nil
	}

	seen := make(map[int64]bool, len(pool.LandmarkIDs))
	placeLms := pool.LandmarkIDs
	for _, lm := range placeLms {
		if seen[lm] {
			continue
		}
		seen[lm] = true
		landmark, ok := db.Landmark(lm)
		if !ok {
			logger.Debugw("pool landmark not in database", "landmark", lm)
			continue
		}
		for _, observer := range landmark.FrameIDs {
			if inPlace[observer] {
				continue
			}
			frame, ok := db.Frame(observer)
			if !ok {
				logger.Debugw("observing frame not in database", "frame", observer, "landmark", lm)
				continue
			}
			idx := frame.LandmarkIndex(lm)
			if idx < 0 {
				logger.Debugw("frame listed as observer but does not observe landmark", "frame", observer, "landmark", lm)
				continue
			}
			pool.Descriptors = append(pool.Descriptors, frame.Descriptors[idx])
			pool.LandmarkIDs = append(pool.LandmarkIDs, lm)
			pool.FrameIDs = append(pool.FrameIDs, observer)
			pool.KeypointIdxs = append(pool.KeypointIdxs, idx)
		}
	}
	return pool, nil
}

// MatchAgainstPlace matches query descriptors against the pooled descriptors
// of the place. The nearest pool descriptor is accepted when the two nearest
// neighbors carry the same landmark id, or when the nearest/second-nearest
// distance ratio is strictly below cfg.RatioThreshold. An empty query set or
// a pool of size <= 1 yields no matches.
func MatchAgainstPlace(
	placeFrames []int64,
	db localdb.Database,
	queryDescs []descriptor.Descriptor,
	cfg *Config,
) ([]Match, *Pool, error) {
	if err := cfg.CheckValid(); err != nil {
		return nil, nil, err
	}
	pool, err := BuildPool(placeFrames, db, cfg.ExpandObservations)
	if err != nil {
		return nil, nil, err
	}
	matches := []Match{}
	if len(queryDescs) == 0 || pool.Size() <= 1 {
		return matches, pool, nil
	}
	for qi, q := range queryDescs {
		best, second, dBest, dSecond, err := descriptor.TwoNearest(q, pool.Descriptors)
		if err != nil {
			return nil, nil, err
		}
		good := pool.LandmarkIDs[best] == pool.LandmarkIDs[second]
		good = good || (dSecond > 0 && dBest/dSecond < cfg.RatioThreshold)
		if good {
			matches = append(matches, Match{QueryIdx: qi, PoolIdx: best})
		}
	}
	return matches, pool, nil
}

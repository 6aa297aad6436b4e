// Package covisibility partitions candidate reference frames into places:
// connected components under the "shares a 3D landmark" relation.
package covisibility

import (
	"sort"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/vitalemonate/hfnet/localdb"
)

var logger = golog.NewLogger("covisibility")

// Place is an ordered set of frame ids forming one connected component of the
// covisibility graph restricted to a candidate frame set.
type Place []int64

// Cluster partitions frameIDs into places. Two frames land in the same place
// iff they are connected through shared landmark observations within the
// candidate set. Places are returned sorted by descending size; places of
// equal size keep first-discovered order. Frames are visited in input order
// and each component is grown breadth-first with a FIFO frontier, so the
// output is deterministic for a given input ordering.
//
// Every candidate frame id must exist in db; a missing frame is an error.
// Landmark ids recorded on a frame but absent from db are skipped.
func Cluster(frameIDs []int64, db localdb.Database) ([]Place, error) {
	candidates := make(map[int64]bool, len(frameIDs))
	for _, id := range frameIDs {
		candidates[id] = true
	}
	visited := make(map[int64]bool, len(frameIDs))
	var places []Place

	for _, seed := range frameIDs {
		if visited[seed] {
			continue
		}
		visited[seed] = true
		place := Place{}
		queue := []int64{seed}
		for len(queue) > 0 {
			frameID := queue[0]
			queue = queue[1:]
			place = append(place, frameID)

			frame, ok := db.Frame(frameID)
			if !ok {
				return nil, errors.Errorf("candidate frame %d not in database", frameID)
			}
			for _, lm := range frame.LandmarkIDs {
				landmark, ok := db.Landmark(lm)
				if !ok {
					logger.Debugw("observed landmark not in database", "frame", frameID, "landmark", lm)
					continue
				}
				for _, observer := range landmark.FrameIDs {
					if !candidates[observer] || visited[observer] {
						continue
					}
					visited[observer] = true
					queue = append(queue, observer)
				}
			}
		}
		places = append(places, place)
	}

	sort.SliceStable(places, func(i, j int) bool {
		return len(places[i]) > len(places[j])
	})
	return places, nil
}

package localdb

import (
	"encoding/json"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"github.com/vitalemonate/hfnet/descriptor"
)

type frameJSON struct {
	ID          int64        `json:"id"`
	Descriptors [][]float64  `json:"descriptors"`
	LandmarkIDs []int64      `json:"landmark_ids"`
	Keypoints   [][2]float64 `json:"keypoints"`
}

type landmarkJSON struct {
	ID           int64      `json:"id"`
	Position     [3]float64 `json:"position"`
	FrameIDs     []int64    `json:"frame_ids"`
	KeypointIdxs []int      `json:"keypoint_idxs"`
}

type databaseJSON struct {
	Frames    []frameJSON    `json:"frames"`
	Landmarks []landmarkJSON `json:"landmarks"`
}

// NewDatabaseFromJSONFile reads an InMemoryDatabase from a JSON file.
func NewDatabaseFromJSONFile(path string) (*InMemoryDatabase, error) {
	//nolint:gosec
	jsonFile, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening database JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	parsed := &databaseJSON{}
	if err := json.NewDecoder(jsonFile).Decode(parsed); err != nil {
		return nil, errors.Wrap(err, "error parsing database JSON")
	}
	db := NewInMemoryDatabase()
	for _, fj := range parsed.Frames {
		frame := &Frame{
			ID:          fj.ID,
			Descriptors: make([]descriptor.Descriptor, len(fj.Descriptors)),
			LandmarkIDs: fj.LandmarkIDs,
			Keypoints:   make([]r2.Point, len(fj.Keypoints)),
		}
		for i, d := range fj.Descriptors {
			frame.Descriptors[i] = descriptor.Descriptor(d)
		}
		for i, kp := range fj.Keypoints {
			frame.Keypoints[i] = r2.Point{X: kp[0], Y: kp[1]}
		}
		if err := db.AddFrame(frame); err != nil {
			return nil, err
		}
	}
	for _, lj := range parsed.Landmarks {
		landmark := &Landmark{
			ID:           lj.ID,
			Position:     r3.Vector{X: lj.Position[0], Y: lj.Position[1], Z: lj.Position[2]},
			FrameIDs:     lj.FrameIDs,
			KeypointIdxs: lj.KeypointIdxs,
		}
		if err := db.AddLandmark(landmark); err != nil {
			return nil, err
		}
	}
	return db, nil
}

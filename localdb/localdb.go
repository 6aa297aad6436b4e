// Package localdb holds the reference database the localization core queries:
// frames with their local descriptors, landmark observations and keypoints,
// and landmarks with their 3D positions and observing frames. The database is
// immutable during query processing and safe for concurrent readers.
package localdb

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/vitalemonate/hfnet/descriptor"
)

// Frame is one reference image: a descriptor, a landmark id and a pixel
// keypoint per observation, stored as parallel slices. Index i refers to the
// same observation in all three.
type Frame struct {
	ID          int64
	Descriptors []descriptor.Descriptor
	LandmarkIDs []int64
	Keypoints   []r2.Point
}

// CheckValid checks that the observation slices are parallel and landmark ids
// are non-negative.
func (f *Frame) CheckValid() error {
	if f == nil {
		return errors.New("frame is nil")
	}
	if len(f.Descriptors) != len(f.LandmarkIDs) || len(f.Descriptors) != len(f.Keypoints) {
		return errors.Errorf("frame %d observation slices must be parallel, got %d descriptors, %d landmark ids, %d keypoints",
			f.ID, len(f.Descriptors), len(f.LandmarkIDs), len(f.Keypoints))
	}
	for i, lm := range f.LandmarkIDs {
		if lm < 0 {
			return errors.Errorf("frame %d has negative landmark id %d at observation %d", f.ID, lm, i)
		}
	}
	return nil
}

// LandmarkIndex returns the index of the first observation of landmark lm in
// the frame, or -1 if the frame does not observe it.
func (f *Frame) LandmarkIndex(lm int64) int {
	for i, id := range f.LandmarkIDs {
		if id == lm {
			return i
		}
	}
	return -1
}

// Landmark is a 3D point together with the frames observing it. KeypointIdxs
// is parallel to FrameIDs and gives, per observing frame, the index of the
// observation in that frame.
type Landmark struct {
	ID           int64
	Position     r3.Vector
	FrameIDs     []int64
	KeypointIdxs []int
}

// CheckValid checks that the observer slices are parallel.
func (l *Landmark) CheckValid() error {
	if l == nil {
		return errors.New("landmark is nil")
	}
	if len(l.FrameIDs) != len(l.KeypointIdxs) {
		return errors.Errorf("landmark %d observer slices must be parallel, got %d frame ids, %d keypoint indices",
			l.ID, len(l.FrameIDs), len(l.KeypointIdxs))
	}
	return nil
}

// Database supplies frames and landmarks by id. Implementations must be safe
// for concurrent readers.
type Database interface {
	Frame(id int64) (*Frame, bool)
	Landmark(id int64) (*Landmark, bool)
}

// InMemoryDatabase is a map-backed Database. It is populated up front and
// read-only afterwards.
type InMemoryDatabase struct {
	frames    map[int64]*Frame
	landmarks map[int64]*Landmark
}

// NewInMemoryDatabase returns an empty database.
func NewInMemoryDatabase() *InMemoryDatabase {
	return &InMemoryDatabase{
		frames:    map[int64]*Frame{},
		landmarks: map[int64]*Landmark{},
	}
}

// AddFrame validates the frame and adds it to the database.
func (db *InMemoryDatabase) AddFrame(f *Frame) error {
	if err := f.CheckValid(); err != nil {
		return err
	}
	if _, ok := db.frames[f.ID]; ok {
		return errors.Errorf("frame %d already in database", f.ID)
	}
	db.frames[f.ID] = f
	return nil
}

// AddLandmark validates the landmark and adds it to the database.
func (db *InMemoryDatabase) AddLandmark(l *Landmark) error {
	if err := l.CheckValid(); err != nil {
		return err
	}
	if _, ok := db.landmarks[l.ID]; ok {
		return errors.Errorf("landmark %d already in database", l.ID)
	}
	db.landmarks[l.ID] = l
	return nil
}

// Frame returns the frame with the given id.
func (db *InMemoryDatabase) Frame(id int64) (*Frame, bool) {
	f, ok := db.frames[id]
	return f, ok
}

// Landmark returns the landmark with the given id.
func (db *InMemoryDatabase) Landmark(id int64) (*Landmark, bool) {
	l, ok := db.landmarks[id]
	return l, ok
}

// NumFrames returns the number of frames in the database.
func (db *InMemoryDatabase) NumFrames() int {
	return len(db.frames)
}

// NumLandmarks returns the number of landmarks in the database.
func (db *InMemoryDatabase) NumLandmarks() int {
	return len(db.landmarks)
}

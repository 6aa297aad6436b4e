// Package camera models the query camera: pinhole intrinsics plus a
// single-coefficient radial distortion.
package camera

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/mat"
)

// ErrNoIntrinsics is when a camera does not have intrinsics parameters.
var ErrNoIntrinsics = errors.New("camera intrinsic parameters are not available")

// NewNoIntrinsicsError is used when the intrinsics are not defined.
func NewNoIntrinsicsError(msg string) error {
	return errors.Wrapf(ErrNoIntrinsics, msg)
}

// PinholeIntrinsics holds the parameters of a perspective projection from the
// camera frame to the 2D image plane.
type PinholeIntrinsics struct {
	Fx  float64 `json:"fx"`
	Fy  float64 `json:"fy"`
	Ppx float64 `json:"ppx"`
	Ppy float64 `json:"ppy"`
}

// CheckValid checks if the fields for PinholeIntrinsics have valid inputs.
func (params *PinholeIntrinsics) CheckValid() error {
	if params == nil {
		return NewNoIntrinsicsError("Intrinsics do not exist")
	}
	if params.Fx <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fx = %#v", params.Fx))
	}
	if params.Fy <= 0 {
		return NewNoIntrinsicsError(fmt.Sprintf("Invalid focal length Fy = %#v", params.Fy))
	}
	return nil
}

// Matrix returns the 3x3 intrinsic matrix K.
func (params *PinholeIntrinsics) Matrix() *mat.Dense {
	return mat.NewDense(3, 3, []float64{
		params.Fx, 0, params.Ppx,
		0, params.Fy, params.Ppy,
		0, 0, 1,
	})
}

// PointToPixel projects a 3D point in the camera frame to a subpixel image
// coordinate. The second return value is false when the point is at or behind
// the camera plane.
func (params *PinholeIntrinsics) PointToPixel(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{}, false
	}
	return r2.Point{
		X: (pt.X/pt.Z)*params.Fx + params.Ppx,
		Y: (pt.Y/pt.Z)*params.Fy + params.Ppy,
	}, true
}

// PixelToNormalized converts a pixel coordinate to normalized image
// coordinates (z = 1 plane).
func (params *PinholeIntrinsics) PixelToNormalized(px r2.Point) r2.Point {
	return r2.Point{
		X: (px.X - params.Ppx) / params.Fx,
		Y: (px.Y - params.Ppy) / params.Fy,
	}
}

// Model pairs pinhole intrinsics with a single radial distortion coefficient.
type Model struct {
	Intrinsics PinholeIntrinsics `json:"intrinsics"`
	// RadialK1 is the first radial distortion coefficient; the remaining
	// coefficients of the radial model are fixed at zero.
	RadialK1 float64 `json:"radial_k1"`
}

// CheckValid checks if the fields for Model have valid inputs.
func (m *Model) CheckValid() error {
	if m == nil {
		return errors.New("camera model is nil")
	}
	return m.Intrinsics.CheckValid()
}

// Project maps a point in the camera frame through the distortion model to a
// pixel coordinate. The second return value is false when the point is at or
// behind the camera plane.
func (m *Model) Project(pt r3.Vector) (r2.Point, bool) {
	if pt.Z <= 0 {
		return r2.Point{}, false
	}
	x := pt.X / pt.Z
	y := pt.Y / pt.Z
	r := x*x + y*y
	d := 1 + m.RadialK1*r
	return r2.Point{
		X: x*d*m.Intrinsics.Fx + m.Intrinsics.Ppx,
		Y: y*d*m.Intrinsics.Fy + m.Intrinsics.Ppy,
	}, true
}

// Undistort maps an observed (distorted) pixel to the pixel an ideal pinhole
// camera would have produced. It solves the forward radial model for the
// undistorted normalized coordinates with a Newton-Raphson iteration.
func (m *Model) Undistort(px r2.Point) r2.Point {
	n := m.Intrinsics.PixelToNormalized(px)
	xd, yd := n.X, n.Y
	// Start with the distorted point as initial guess.
	xu, yu := xd, yd

	const maxIterations = 20
	const tolerance = 1e-10

	for i := 0; i < maxIterations; i++ {
		r := xu*xu + yu*yu
		radDist := 1.0 + m.RadialK1*r

		errX := xu*radDist - xd
		errY := yu*radDist - yd
		if errX*errX+errY*errY < tolerance*tolerance {
			break
		}

		// Jacobian of the forward model x_d = x_u * (1 + k1*r^2).
		dxdDxu := radDist + 2.0*m.RadialK1*xu*xu
		dxdDyu := 2.0 * m.RadialK1 * xu * yu
		dydDxu := 2.0 * m.RadialK1 * xu * yu
		dydDyu := radDist + 2.0*m.RadialK1*yu*yu

		det := dxdDxu*dydDyu - dxdDyu*dydDxu
		if det == 0 {
			break
		}
		xu -= (dydDyu*errX - dxdDyu*errY) / det
		yu -= (-dydDxu*errX + dxdDxu*errY) / det
	}

	return r2.Point{
		X: xu*m.Intrinsics.Fx + m.Intrinsics.Ppx,
		Y: yu*m.Intrinsics.Fy + m.Intrinsics.Ppy,
	}
}

// NewModelFromJSONFile takes in a file path to a JSON and turns it into a
// camera Model.
func NewModelFromJSONFile(jsonPath string) (*Model, error) {
	//nolint:gosec
	jsonFile, err := os.Open(jsonPath)
	if err != nil {
		return nil, errors.Wrap(err, "error opening JSON file")
	}
	defer utils.UncheckedErrorFunc(jsonFile.Close)
	model := &Model{}
	if err := json.NewDecoder(jsonFile).Decode(model); err != nil {
		return nil, errors.Wrap(err, "error parsing JSON string")
	}
	if err := model.CheckValid(); err != nil {
		return nil, err
	}
	return model, nil
}

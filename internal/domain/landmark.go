package domain

// Landmark is a single tracked body point for one video frame.
// Coordinates are normalized to the frame by the detector.
type Landmark struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z,omitempty"`
	Visibility float64 `json:"visibility,omitempty"`
}

// LandmarkSet is the positional list of landmarks for one frame.
// A nil slot means the detector did not report that point.
type LandmarkSet []*Landmark

// At returns the landmark at index i, or false if it is missing.
func (s LandmarkSet) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(s) || s[i] == nil {
		return Landmark{}, false
	}
	return *s[i], true
}

// Joint names a measured joint angle.
type Joint string

const (
	JointShoulder Joint = "shoulder"
	JointHip      Joint = "hip"
	JointKnee     Joint = "knee"
)

// Joints lists the joints measured on every frame, in reporting order.
var Joints = []Joint{JointShoulder, JointHip, JointKnee}

// AngleMap maps joint names to interior angles in degrees, [0, 180].
type AngleMap map[Joint]float64

// Clone returns an independent copy of the map.
func (m AngleMap) Clone() AngleMap {
	if m == nil {
		return nil
	}
	out := make(AngleMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Package posture computes joint angles from detected body landmarks.
package posture

import (
	"math"

	"github.com/yogguru/trainer/internal/domain"
)

// Landmark indices in the detector's body model.
const (
	RightShoulder = 12
	RightElbow    = 14
	RightHip      = 24
	RightKnee     = 26
	RightAnkle    = 28
)

// triple names the three landmarks of one angle, vertex in the middle.
type triple struct {
	joint                 domain.Joint
	distal, vertex, proxi int
}

var triples = []triple{
	{domain.JointShoulder, RightElbow, RightShoulder, RightHip},
	{domain.JointHip, RightShoulder, RightHip, RightKnee},
	{domain.JointKnee, RightHip, RightKnee, RightAnkle},
}

var required = []int{RightElbow, RightShoulder, RightHip, RightKnee, RightAnkle}

// JointAngle returns the interior angle at b formed by a-b-c, in degrees [0, 180].
func JointAngle(a, b, c domain.Landmark) float64 {
	radians := math.Atan2(c.Y-b.Y, c.X-b.X) - math.Atan2(a.Y-b.Y, a.X-b.X)
	angle := math.Abs(radians * 180.0 / math.Pi)
	if angle > 180.0 {
		angle = 360.0 - angle
	}
	return angle
}

// ComputeAngles measures the shoulder, hip and knee angles of one frame.
// It returns false when any required landmark is missing; callers skip the frame.
func ComputeAngles(set domain.LandmarkSet) (domain.AngleMap, bool) {
	for _, idx := range required {
		if _, ok := set.At(idx); !ok {
			return nil, false
		}
	}

	angles := make(domain.AngleMap, len(triples))
	for _, t := range triples {
		a, _ := set.At(t.distal)
		b, _ := set.At(t.vertex)
		c, _ := set.At(t.proxi)
		angles[t.joint] = JointAngle(a, b, c)
	}
	return angles, true
}

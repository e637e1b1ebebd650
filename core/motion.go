package core

import (
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// MotionModel answers where a node is at a given simulation time. Position
// queries are pure so the visibility predictor can sample future geometry
// without disturbing the present state.
type MotionModel interface {
	// PositionAt returns the node's ECEF position in kilometres at simTime.
	// ok is false when no position can be computed for that instant.
	PositionAt(simTime time.Time) (Vec3, bool)
}

// StaticMotionModel pins the node to a fixed position (ground stations).
type StaticMotionModel struct {
	Position Vec3
}

func (m *StaticMotionModel) PositionAt(time.Time) (Vec3, bool) {
	return m.Position, true
}

// OrbitalSGP4MotionModel propagates a TLE with SGP4.
type OrbitalSGP4MotionModel struct {
	sat satellite.Satellite
}

// NewOrbitalModelFromTLE constructs an orbital model from TLE lines.
func NewOrbitalModelFromTLE(line1, line2 string) *OrbitalSGP4MotionModel {
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &OrbitalSGP4MotionModel{sat: sat}
}

// PositionAt propagates the satellite to simTime and converts the ECI result
// to ECEF. go-satellite works in kilometres throughout.
func (m *OrbitalSGP4MotionModel) PositionAt(simTime time.Time) (Vec3, bool) {
	year, month, day := simTime.Date()
	hour, min, sec := simTime.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	posECEF := satellite.ECIToECEF(posECI, gmst)

	pos := Vec3{X: posECEF.X, Y: posECEF.Y, Z: posECEF.Z}
	// SGP4 signals propagation failure with a zero/NaN-ish vector; a node at
	// the Earth's centre is never a valid answer.
	if pos.Norm() < 1 {
		return Vec3{}, false
	}
	return pos, true
}

// NewMotionModel chooses a motion model: SGP4 when both TLE lines are
// present, otherwise static at the given position.
func NewMotionModel(tle1, tle2 string, static Vec3) MotionModel {
	if tle1 != "" && tle2 != "" {
		return NewOrbitalModelFromTLE(tle1, tle2)
	}
	return &StaticMotionModel{Position: static}
}

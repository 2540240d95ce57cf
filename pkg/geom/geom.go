// Package geom holds the small value types shared by the sketch, profile,
// feature and kernel layers. The sketch plane is the XY plane at Z=0.
package geom

import (
	"fmt"
	"math"
)

// Point2D is an immutable point in the sketch plane.
type Point2D struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Pt is shorthand for Point2D{x, y}.
func Pt(x, y float64) Point2D {
	return Point2D{X: x, Y: y}
}

func (p Point2D) Add(q Point2D) Point2D       { return Point2D{p.X + q.X, p.Y + q.Y} }
func (p Point2D) Sub(q Point2D) Point2D       { return Point2D{p.X - q.X, p.Y - q.Y} }
func (p Point2D) Scale(s float64) Point2D     { return Point2D{p.X * s, p.Y * s} }
func (p Point2D) Dot(q Point2D) float64       { return p.X*q.X + p.Y*q.Y }
func (p Point2D) Cross(q Point2D) float64     { return p.X*q.Y - p.Y*q.X }
func (p Point2D) Len() float64                { return math.Hypot(p.X, p.Y) }
func (p Point2D) Dist(q Point2D) float64      { return p.Sub(q).Len() }
func (p Point2D) Near(q Point2D, tol float64) bool { return p.Dist(q) <= tol }

// To3 lifts the point onto the sketch plane.
func (p Point2D) To3() Vec3 {
	return Vec3{X: p.X, Y: p.Y}
}

func (p Point2D) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// Polar returns center + r*(cos a, sin a).
func Polar(center Point2D, r, a float64) Point2D {
	return Point2D{center.X + r*math.Cos(a), center.Y + r*math.Sin(a)}
}

// Vec3 is a 3D vector or point.
type Vec3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// V3 is shorthand for Vec3{x, y, z}.
func V3(x, y, z float64) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(w Vec3) Vec3       { return Vec3{v.X + w.X, v.Y + w.Y, v.Z + w.Z} }
func (v Vec3) Sub(w Vec3) Vec3       { return Vec3{v.X - w.X, v.Y - w.Y, v.Z - w.Z} }
func (v Vec3) Scale(s float64) Vec3  { return Vec3{v.X * s, v.Y * s, v.Z * s} }
func (v Vec3) Dot(w Vec3) float64    { return v.X*w.X + v.Y*w.Y + v.Z*w.Z }
func (v Vec3) Len() float64          { return math.Sqrt(v.Dot(v)) }
func (v Vec3) Dist(w Vec3) float64   { return v.Sub(w).Len() }
func (v Vec3) IsZero() bool          { return v.X == 0 && v.Y == 0 && v.Z == 0 }

func (v Vec3) Cross(w Vec3) Vec3 {
	return Vec3{
		X: v.Y*w.Z - v.Z*w.Y,
		Y: v.Z*w.X - v.X*w.Z,
		Z: v.X*w.Y - v.Y*w.X,
	}
}

// Unit returns v scaled to length 1. The zero vector is returned unchanged.
func (v Vec3) Unit() Vec3 {
	l := v.Len()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// XY drops the Z component.
func (v Vec3) XY() Point2D {
	return Point2D{X: v.X, Y: v.Y}
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.X, v.Y, v.Z)
}

// Axis is a directed line in 3D, used for revolution.
type Axis struct {
	Origin    Vec3 `json:"origin" yaml:"origin"`
	Direction Vec3 `json:"direction" yaml:"direction"`
}

// InPlane reports whether the axis lies in the sketch plane.
func (a Axis) InPlane(tol float64) bool {
	return math.Abs(a.Origin.Z) <= tol && math.Abs(a.Direction.Unit().Z) <= tol
}

// SignedDistance2D returns the signed distance of p from the axis projected
// into the sketch plane. Positive values lie to the left of the direction.
func (a Axis) SignedDistance2D(p Point2D) float64 {
	d := a.Direction.XY()
	l := d.Len()
	if l == 0 {
		return 0
	}
	return d.Cross(p.Sub(a.Origin.XY())) / l
}

// Finite reports whether every argument is a finite number.
func Finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// NormalizeAngle maps a into [0, 2π).
func NormalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

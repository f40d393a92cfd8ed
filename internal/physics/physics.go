// Package physics contains the pure ball and paddle math used by every match.
//
// All functions take values and return values. Nothing here reads the clock,
// touches a session or does I/O, so a tick can be replayed by calling the same
// functions with the same inputs.
package physics

import (
	"math"
	"math/rand"
)

const (
	// HitSpeedup is applied to the ball's nominal speed on every paddle hit.
	HitSpeedup = 1.05

	// MaxBounceAngle is the steepest angle (from horizontal) a paddle can return the ball at.
	MaxBounceAngle = math.Pi / 4

	// MaxServeAngle bounds the random serve direction after a point.
	MaxServeAngle = math.Pi / 3

	// separation keeps a resolved ball strictly outside the paddle it hit.
	separation = 0.01
)

// Dimensions is the playable canvas in pixels.
type Dimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Ball is the single ball of a match. Velocity is in pixels per second.
type Ball struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	VX     float64 `json:"vx"`
	VY     float64 `json:"vy"`
	Radius float64 `json:"radius"`
	Speed  float64 `json:"speed"` // nominal speed, grows on paddle hits
}

// Paddle is one side's paddle. VY is the velocity applied on the last move.
type Paddle struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Speed  float64 `json:"speed"`
	VY     float64 `json:"vy"`
}

// Side identifies a half of the court.
type Side int

const (
	SideNone Side = iota
	SideLeft
	SideRight
)

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	default:
		return "none"
	}
}

// Opposite returns the other side. SideNone maps to itself.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	default:
		return SideNone
	}
}

// Direction is a paddle movement request.
type Direction int

const (
	DirStop Direction = 0
	DirUp   Direction = -1
	DirDown Direction = 1
)

// CenterY returns the vertical centre of the paddle.
func (p Paddle) CenterY() float64 {
	return p.Y + p.Height/2
}

// Velocity returns the magnitude of the ball's velocity vector.
func (b Ball) Velocity() float64 {
	return math.Hypot(b.VX, b.VY)
}

// AdvanceBall integrates the ball position by its velocity over dt seconds.
func AdvanceBall(b Ball, dt float64) Ball {
	b.X += b.VX * dt
	b.Y += b.VY * dt
	return b
}

// ReflectOffWalls bounces the ball off the top and bottom edges.
// The returned bool reports whether a reflection happened.
func ReflectOffWalls(b Ball, dims Dimensions) (Ball, bool) {
	switch {
	case b.Y-b.Radius <= 0 && b.VY < 0:
		b.Y = b.Radius
		b.VY = -b.VY
		return b, true
	case b.Y+b.Radius >= dims.Height && b.VY > 0:
		b.Y = dims.Height - b.Radius
		b.VY = -b.VY
		return b, true
	}
	// Already heading back in: only the position is pulled inside.
	b.Y = clamp(b.Y, b.Radius, math.Max(dims.Height-b.Radius, b.Radius))
	return b, false
}

// DetectPaddleCollision reports whether the ball circle overlaps the paddle rectangle.
func DetectPaddleCollision(b Ball, p Paddle) bool {
	closestX := clamp(b.X, p.X, p.X+p.Width)
	closestY := clamp(b.Y, p.Y, p.Y+p.Height)
	dx := b.X - closestX
	dy := b.Y - closestY
	return dx*dx+dy*dy < b.Radius*b.Radius
}

// ResolvePaddleCollision bounces the ball off a paddle it overlaps.
//
// The return angle is a linear mapping of where the ball struck relative to the
// paddle centre onto ±MaxBounceAngle. The nominal speed grows by HitSpeedup up
// to maxSpeed and the ball is moved just outside the face that looks into the
// court. owner is the side the paddle defends; with SideNone the ball is sent
// back against its horizontal velocity.
func ResolvePaddleCollision(b Ball, p Paddle, owner Side, maxSpeed float64) Ball {
	half := p.Height / 2
	offset := 0.0
	if half > 0 {
		offset = clamp((b.Y-p.CenterY())/half, -1, 1)
	}
	angle := offset * MaxBounceAngle

	speed := math.Min(b.Speed*HitSpeedup, maxSpeed)
	dir := bounceDirection(b, p, owner)

	b.Speed = speed
	b.VX = dir * speed * math.Cos(angle)
	b.VY = speed * math.Sin(angle)

	if dir > 0 {
		b.X = p.X + p.Width + b.Radius + separation
	} else {
		b.X = p.X - b.Radius - separation
	}
	return b
}

// bounceDirection never depends on where the ball centre ended up: a fast ball
// can cross the whole paddle width in one tick.
func bounceDirection(b Ball, p Paddle, owner Side) float64 {
	switch {
	case owner == SideLeft:
		return 1
	case owner == SideRight:
		return -1
	case b.VX < 0:
		return 1
	case b.VX > 0:
		return -1
	case b.X < p.X+p.Width/2:
		return -1
	}
	return 1
}

// CheckOutOfBounds returns the side that scored, if the ball centre left the court.
func CheckOutOfBounds(b Ball, dims Dimensions) Side {
	switch {
	case b.X <= 0:
		return SideRight
	case b.X >= dims.Width:
		return SideLeft
	}
	return SideNone
}

// ResetBall puts the ball back in the centre and serves it towards serveTowards
// with |VX| equal to baseSpeed and a random vertical component within ±MaxServeAngle.
// Speed is set to the resulting magnitude so the next paddle hit still speeds
// the ball up.
func ResetBall(b Ball, dims Dimensions, serveTowards Side, baseSpeed float64, rng *rand.Rand) Ball {
	b.X = dims.Width / 2
	b.Y = dims.Height / 2
	dir := 1.0
	if serveTowards == SideLeft {
		dir = -1.0
	}
	theta := (rng.Float64()*2 - 1) * MaxServeAngle

	b.VX = dir * baseSpeed
	b.VY = baseSpeed * math.Sin(theta)
	b.Speed = b.Velocity()
	return b
}

// ClampPaddle keeps the paddle fully on the canvas. It is idempotent.
func ClampPaddle(p Paddle, dims Dimensions) Paddle {
	maxY := math.Max(dims.Height-p.Height, 0)
	p.Y = clamp(p.Y, 0, maxY)
	return p
}

// MovePaddle applies a movement request for dt seconds and clamps the result.
func MovePaddle(p Paddle, dir Direction, dt float64, dims Dimensions) Paddle {
	p.VY = float64(dir) * p.Speed
	p.Y += p.VY * dt
	return ClampPaddle(p, dims)
}

// CapVelocity scales the velocity vector down so its magnitude never exceeds maxSpeed.
func CapVelocity(b Ball, maxSpeed float64) Ball {
	v := b.Velocity()
	if v > maxSpeed && v > 0 {
		scale := maxSpeed / v
		b.VX *= scale
		b.VY *= scale
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

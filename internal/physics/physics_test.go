package physics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDims = Dimensions{Width: 800, Height: 600}

func TestAdvanceBall(t *testing.T) {
	b := Ball{X: 100, Y: 100, VX: 300, VY: -120, Radius: 8}
	got := AdvanceBall(b, 0.5)

	assert.InDelta(t, 250, got.X, 1e-9)
	assert.InDelta(t, 40, got.Y, 1e-9)
	assert.Equal(t, b.VX, got.VX)
}

func TestReflectOffWalls(t *testing.T) {
	tests := []struct {
		name      string
		ball      Ball
		reflected bool
	}{
		{"through top", Ball{X: 400, Y: -5, VY: -200, Radius: 8}, true},
		{"touching top", Ball{X: 400, Y: 8, VY: -200, Radius: 8}, true},
		{"through bottom", Ball{X: 400, Y: 610, VY: 200, Radius: 8}, true},
		{"mid court", Ball{X: 400, Y: 300, VY: 200, Radius: 8}, false},
		{"near bottom moving away", Ball{X: 400, Y: 580, VY: -50, Radius: 8}, false},
		{"resting on top moving away", Ball{X: 400, Y: 8, VY: 120, Radius: 8}, false},
		{"resting on bottom moving away", Ball{X: 400, Y: 592, VY: -120, Radius: 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, reflected := ReflectOffWalls(tt.ball, testDims)
			assert.Equal(t, tt.reflected, reflected)

			assert.GreaterOrEqual(t, got.Y, got.Radius)
			assert.LessOrEqual(t, got.Y, testDims.Height-got.Radius)

			if reflected {
				assert.True(t, math.Signbit(got.VY) != math.Signbit(tt.ball.VY),
					"vy should flip sign: before %v after %v", tt.ball.VY, got.VY)
			} else {
				assert.Equal(t, tt.ball, got)
			}
		})
	}
}

func TestReflectOffWallsKeepsBallInsideForManyStates(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 1000; i++ {
		b := Ball{
			X:      rng.Float64() * testDims.Width,
			Y:      rng.Float64()*700 - 50,
			VX:     rng.Float64()*600 - 300,
			VY:     rng.Float64()*600 - 300,
			Radius: 8,
		}
		if b.VY == 0 {
			b.VY = 1
		}
		got, reflected := ReflectOffWalls(b, testDims)
		require.GreaterOrEqual(t, got.Y, got.Radius)
		require.LessOrEqual(t, got.Y, testDims.Height-got.Radius)
		if reflected && b.VY != 0 {
			// a ball already heading back into the court keeps its direction
			movingOut := (b.Y-b.Radius <= 0 && b.VY < 0) || (b.Y+b.Radius >= testDims.Height && b.VY > 0)
			if movingOut {
				require.Equal(t, -b.VY, got.VY)
			}
		}
	}
}

func TestDetectPaddleCollision(t *testing.T) {
	p := Paddle{X: 20, Y: 250, Width: 10, Height: 100}

	tests := []struct {
		name string
		ball Ball
		want bool
	}{
		{"face overlap", Ball{X: 35, Y: 300, Radius: 8}, true},
		{"inside", Ball{X: 25, Y: 300, Radius: 8}, true},
		{"corner overlap", Ball{X: 33, Y: 245, Radius: 8}, true},
		{"just outside face", Ball{X: 38.5, Y: 300, Radius: 8}, false},
		{"above paddle", Ball{X: 25, Y: 200, Radius: 8}, false},
		{"far away", Ball{X: 400, Y: 300, Radius: 8}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectPaddleCollision(tt.ball, p))
		})
	}
}

func TestResolvePaddleCollision(t *testing.T) {
	left := Paddle{X: 20, Y: 250, Width: 10, Height: 100}
	right := Paddle{X: 770, Y: 250, Width: 10, Height: 100}

	tests := []struct {
		name     string
		paddle   Paddle
		owner    Side
		ball     Ball
		maxSpeed float64
		wantDir  float64
	}{
		{"left paddle centre hit", left, SideLeft, Ball{X: 34, Y: 300, VX: -300, Radius: 8, Speed: 300}, 900, 1},
		{"left paddle top edge", left, SideLeft, Ball{X: 34, Y: 252, VX: -300, VY: -40, Radius: 8, Speed: 300}, 900, 1},
		{"right paddle bottom edge", right, SideRight, Ball{X: 765, Y: 349, VX: 300, Radius: 8, Speed: 300}, 900, -1},
		{"speed capped", right, SideRight, Ball{X: 765, Y: 300, VX: 880, Radius: 8, Speed: 880}, 900, -1},
		{"fast ball past left centre", left, SideLeft, Ball{X: 24, Y: 300, VX: -900, Radius: 8, Speed: 900}, 900, 1},
		{"fast ball past right centre", right, SideRight, Ball{X: 776, Y: 300, VX: 900, Radius: 8, Speed: 900}, 900, -1},
		{"unknown owner uses velocity", left, SideNone, Ball{X: 24, Y: 300, VX: -600, Radius: 8, Speed: 600}, 900, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, DetectPaddleCollision(tt.ball, tt.paddle))

			got := ResolvePaddleCollision(tt.ball, tt.paddle, tt.owner, tt.maxSpeed)

			wantSpeed := math.Min(tt.ball.Speed*HitSpeedup, tt.maxSpeed)
			assert.InDelta(t, wantSpeed, got.Speed, 1e-9)
			assert.InDelta(t, wantSpeed, got.Velocity(), 1e-9)
			assert.Equal(t, tt.wantDir > 0, got.VX > 0)
			if tt.wantDir > 0 {
				assert.Greater(t, got.X, tt.paddle.X+tt.paddle.Width, "ball must leave in front of the paddle")
			} else {
				assert.Less(t, got.X, tt.paddle.X, "ball must leave in front of the paddle")
			}
			assert.False(t, DetectPaddleCollision(got, tt.paddle), "ball must not stick to the paddle")

			angle := math.Atan2(math.Abs(got.VY), math.Abs(got.VX))
			assert.LessOrEqual(t, angle, MaxBounceAngle+1e-9)
		})
	}
}

func TestResolvePaddleCollisionAngleFollowsOffset(t *testing.T) {
	p := Paddle{X: 20, Y: 250, Width: 10, Height: 100}

	top := ResolvePaddleCollision(Ball{X: 34, Y: 255, Radius: 8, Speed: 300}, p, SideLeft, 900)
	centre := ResolvePaddleCollision(Ball{X: 34, Y: 300, Radius: 8, Speed: 300}, p, SideLeft, 900)
	bottom := ResolvePaddleCollision(Ball{X: 34, Y: 345, Radius: 8, Speed: 300}, p, SideLeft, 900)

	assert.Less(t, top.VY, 0.0)
	assert.InDelta(t, 0, centre.VY, 1e-9)
	assert.Greater(t, bottom.VY, 0.0)
}

func TestCheckOutOfBounds(t *testing.T) {
	assert.Equal(t, SideRight, CheckOutOfBounds(Ball{X: 0, Y: 300}, testDims))
	assert.Equal(t, SideRight, CheckOutOfBounds(Ball{X: -3, Y: 300}, testDims))
	assert.Equal(t, SideLeft, CheckOutOfBounds(Ball{X: 800, Y: 300}, testDims))
	assert.Equal(t, SideNone, CheckOutOfBounds(Ball{X: 400, Y: 300}, testDims))
}

func TestResetBall(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		side := SideLeft
		if i%2 == 0 {
			side = SideRight
		}
		b := ResetBall(Ball{X: -4, Y: 20, VX: -500, Radius: 8, Speed: 700}, testDims, side, 300, rng)

		require.Equal(t, testDims.Width/2, b.X)
		require.Equal(t, testDims.Height/2, b.Y)
		require.InDelta(t, 300, math.Abs(b.VX), 1e-9)
		require.Equal(t, side == SideRight, b.VX > 0)
		require.LessOrEqual(t, math.Abs(b.VY), 300*math.Sin(MaxServeAngle)+1e-9)
		require.InDelta(t, b.Velocity(), b.Speed, 1e-9)
		require.GreaterOrEqual(t, b.Speed, 300.0)
	}
}

func TestServeThenHitSpeedsBallUp(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	left := Paddle{X: 20, Y: 250, Width: 10, Height: 100}

	for i := 0; i < 50; i++ {
		b := ResetBall(Ball{Radius: 8}, testDims, SideLeft, 300, rng)
		served := b.Velocity()

		b.X, b.Y = 34, 300
		hit := ResolvePaddleCollision(b, left, SideLeft, 2000)
		require.Greater(t, hit.Velocity(), served)
	}
}

func TestClampPaddle(t *testing.T) {
	tests := []struct {
		name  string
		y     float64
		wantY float64
	}{
		{"above canvas", -40, 0},
		{"below canvas", 590, 500},
		{"inside", 120, 120},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Paddle{X: 20, Y: tt.y, Width: 10, Height: 100}
			once := ClampPaddle(p, testDims)
			twice := ClampPaddle(once, testDims)

			assert.Equal(t, tt.wantY, once.Y)
			assert.Equal(t, once, twice)
		})
	}
}

func TestMovePaddleUpAtTopStaysClamped(t *testing.T) {
	p := Paddle{X: 20, Y: 0, Width: 10, Height: 60, Speed: 8}

	got := MovePaddle(p, DirUp, 1, testDims)

	assert.Equal(t, 0.0, got.Y)
	assert.Equal(t, -8.0, got.VY)
}

func TestMovePaddleDown(t *testing.T) {
	p := Paddle{X: 20, Y: 100, Width: 10, Height: 60, Speed: 420}

	got := MovePaddle(p, DirDown, 0.5, testDims)
	assert.Equal(t, 310.0, got.Y)

	got = MovePaddle(got, DirDown, 10, testDims)
	assert.Equal(t, 540.0, got.Y)
}

func TestCapVelocity(t *testing.T) {
	b := CapVelocity(Ball{VX: 600, VY: 800}, 500)
	assert.InDelta(t, 500, b.Velocity(), 1e-9)

	slow := Ball{VX: 30, VY: 40}
	assert.Equal(t, slow, CapVelocity(slow, 500))
}

func TestLayoutPaddles(t *testing.T) {
	l := DefaultLayout()
	left, right := l.LeftPaddle(), l.RightPaddle()

	assert.Equal(t, 20.0, left.X)
	assert.Equal(t, 770.0, right.X)
	assert.Equal(t, left.Y, right.Y)
	assert.Equal(t, 300.0, left.CenterY())
}

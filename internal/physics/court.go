package physics

// Layout holds the fixed geometry used to build a court.
type Layout struct {
	Dims         Dimensions
	PaddleWidth  float64
	PaddleHeight float64
	PaddleMargin float64 // gap between the canvas edge and the paddle
	PaddleSpeed  float64 // px/s
	BallRadius   float64
	BallSpeed    float64 // px/s, serve speed
	BallMaxSpeed float64 // px/s
}

// DefaultLayout mirrors the classic 800x600 court.
func DefaultLayout() Layout {
	return Layout{
		Dims:         Dimensions{Width: 800, Height: 600},
		PaddleWidth:  10,
		PaddleHeight: 100,
		PaddleMargin: 20,
		PaddleSpeed:  420,
		BallRadius:   8,
		BallSpeed:    300,
		BallMaxSpeed: 900,
	}
}

// LeftPaddle returns a centred paddle for the left side.
func (l Layout) LeftPaddle() Paddle {
	return Paddle{
		X:      l.PaddleMargin,
		Y:      (l.Dims.Height - l.PaddleHeight) / 2,
		Width:  l.PaddleWidth,
		Height: l.PaddleHeight,
		Speed:  l.PaddleSpeed,
	}
}

// RightPaddle returns a centred paddle for the right side.
func (l Layout) RightPaddle() Paddle {
	p := l.LeftPaddle()
	p.X = l.Dims.Width - l.PaddleMargin - l.PaddleWidth
	return p
}

// CenteredBall returns a stationary ball in the middle of the court.
func (l Layout) CenteredBall() Ball {
	return Ball{
		X:      l.Dims.Width / 2,
		Y:      l.Dims.Height / 2,
		Radius: l.BallRadius,
		Speed:  l.BallSpeed,
	}
}

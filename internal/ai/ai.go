// Package ai drives the computer-controlled paddle.
//
// The opponent is deliberately limited: it only looks at the court once per
// UpdateInterval and repeats its last command in between. On each look it
// predicts where the ball will cross its paddle, adds aim noise, and may miss
// the reaction entirely.
package ai

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"pong-arena/internal/physics"
)

const (
	// UpdateInterval is how often the AI is allowed to read fresh state.
	UpdateInterval = time.Second

	// SimulationStep is the forward-simulation step used for trajectory prediction.
	SimulationStep = 16 * time.Millisecond

	maxNoise = 50.0
)

// Command is the movement the AI wants this tick.
type Command int

const (
	CommandStop Command = iota
	CommandUp
	CommandDown
)

func (c Command) String() string {
	switch c {
	case CommandUp:
		return "up"
	case CommandDown:
		return "down"
	default:
		return "stop"
	}
}

// Direction converts the command into a paddle movement.
func (c Command) Direction() physics.Direction {
	switch c {
	case CommandUp:
		return physics.DirUp
	case CommandDown:
		return physics.DirDown
	default:
		return physics.DirStop
	}
}

// ErrUnknownDifficulty is returned for a tier name other than easy, medium or hard.
var ErrUnknownDifficulty = errors.New("unknown ai difficulty")

// Difficulty selects a tuning tier.
type Difficulty string

const (
	Easy   Difficulty = "easy"
	Medium Difficulty = "medium"
	Hard   Difficulty = "hard"
)

// Tuning is the per-tier behaviour of the AI.
type Tuning struct {
	Accuracy     float64       // 0..1, scales aim noise
	Threshold    float64       // dead zone around the paddle centre, px
	ReactionTime float64       // probability that a refresh is acted upon
	Horizon      time.Duration // how far ahead the ball is simulated
}

var tunings = map[Difficulty]Tuning{
	Easy:   {Accuracy: 0.6, Threshold: 30, ReactionTime: 0.7, Horizon: 500 * time.Millisecond},
	Medium: {Accuracy: 0.8, Threshold: 20, ReactionTime: 0.85, Horizon: time.Second},
	Hard:   {Accuracy: 0.9, Threshold: 10, ReactionTime: 0.95, Horizon: 1500 * time.Millisecond},
}

// ParseDifficulty accepts easy, medium or hard (case-insensitive).
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tunings[d]; !ok {
		return "", fmt.Errorf("%w %q", ErrUnknownDifficulty, s)
	}
	return d, nil
}

// TuningFor returns the tuning of a tier, falling back to Medium.
func TuningFor(d Difficulty) Tuning {
	if t, ok := tunings[d]; ok {
		return t
	}
	return tunings[Medium]
}

// Snapshot is what the AI sees when it is allowed to look.
type Snapshot struct {
	Ball   physics.Ball
	Paddle physics.Paddle // the AI's own paddle
	Dims   physics.Dimensions
}

// Point is one predicted ball position.
type Point struct {
	X, Y float64
}

// State is the AI's memory between refreshes.
type State struct {
	Difficulty  Difficulty
	LastUpdate  time.Time
	LastCommand Command
	Prediction  []Point
	TargetY     float64
}

// Engine is one AI player's decision maker. It is safe for concurrent use.
type Engine struct {
	mu       sync.Mutex
	state    State
	tuning   Tuning
	interval time.Duration
	rng      *rand.Rand
}

// Option customises an Engine.
type Option func(*Engine)

// WithRand injects the random source used for noise and reaction misses.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithInterval overrides the refresh interval.
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithTuning overrides the tier's tuning until the next SetDifficulty.
func WithTuning(t Tuning) Option {
	return func(e *Engine) { e.tuning = t }
}

// NewEngine creates an AI at the given difficulty.
func NewEngine(d Difficulty, opts ...Option) *Engine {
	if _, ok := tunings[d]; !ok {
		d = Medium
	}
	e := &Engine{
		state:    State{Difficulty: d, LastCommand: CommandStop},
		tuning:   tunings[d],
		interval: UpdateInterval,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return e
}

// CanFire is the restricted-vision gate: true on the very first look and
// afterwards once interval has passed since lastUpdate.
func CanFire(now, lastUpdate time.Time, interval time.Duration) bool {
	if lastUpdate.IsZero() {
		return true
	}
	return now.Sub(lastUpdate) >= interval
}

// Update returns the command for this tick. Between refreshes it repeats the
// previously issued command without looking at snap.
func (e *Engine) Update(snap Snapshot, now time.Time) Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !CanFire(now, e.state.LastUpdate, e.interval) {
		return e.state.LastCommand
	}
	e.state.LastUpdate = now

	path := PredictTrajectory(snap.Ball, snap.Dims, paddleFaceX(snap), e.tuning.Horizon)
	e.state.Prediction = path

	target := e.pickTarget(snap, path)
	e.state.TargetY = target

	cmd := decide(target, snap.Paddle.CenterY(), e.tuning.Threshold)

	// Missed reaction: the refresh is spent but nothing is done.
	if e.rng.Float64() >= e.tuning.ReactionTime {
		cmd = CommandStop
	}

	e.state.LastCommand = cmd
	return cmd
}

// SetDifficulty changes the tier without clearing the refresh timer or prediction.
func (e *Engine) SetDifficulty(d Difficulty) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := tunings[d]; !ok {
		return
	}
	e.state.Difficulty = d
	e.tuning = tunings[d]
}

// State returns a copy of the AI's memory.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := e.state
	s.Prediction = append([]Point(nil), e.state.Prediction...)
	return s
}

func (e *Engine) pickTarget(snap Snapshot, path []Point) float64 {
	faceX := paddleFaceX(snap)
	approaching := movingTowards(snap.Ball, faceX)

	if !approaching || len(path) == 0 {
		return snap.Dims.Height / 2
	}

	last := path[len(path)-1]
	target := last.Y
	if !crossed(snap.Ball.X, last.X, faceX) {
		// The ball will not arrive within the horizon; shade towards it.
		target = (last.Y + snap.Dims.Height/2) / 2
	}

	noise := (e.rng.Float64()*2 - 1) * (1 - e.tuning.Accuracy) * maxNoise
	return target + noise
}

// PredictTrajectory simulates the ball forward in SimulationStep increments for
// up to horizon, bouncing off the walls, and stops once the ball reaches faceX.
func PredictTrajectory(b physics.Ball, dims physics.Dimensions, faceX float64, horizon time.Duration) []Point {
	steps := int(horizon / SimulationStep)
	dt := SimulationStep.Seconds()
	startX := b.X

	path := make([]Point, 0, steps)
	for i := 0; i < steps; i++ {
		b = physics.AdvanceBall(b, dt)
		b, _ = physics.ReflectOffWalls(b, dims)
		path = append(path, Point{X: b.X, Y: b.Y})
		if crossed(startX, b.X, faceX) {
			break
		}
	}
	return path
}

// decide maps the target to a command using the dead zone around the paddle centre.
func decide(targetY, paddleCenter, threshold float64) Command {
	diff := targetY - paddleCenter
	switch {
	case math.Abs(diff) < threshold:
		return CommandStop
	case diff > 0:
		return CommandDown
	default:
		return CommandUp
	}
}

// paddleFaceX is the x coordinate of the paddle face that points at the court centre.
func paddleFaceX(snap Snapshot) float64 {
	p := snap.Paddle
	if p.X+p.Width/2 < snap.Dims.Width/2 {
		return p.X + p.Width
	}
	return p.X
}

func movingTowards(b physics.Ball, faceX float64) bool {
	if b.X < faceX {
		return b.VX > 0
	}
	return b.VX < 0
}

func crossed(fromX, toX, faceX float64) bool {
	if fromX <= faceX {
		return toX >= faceX
	}
	return toX <= faceX
}

package stats

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"pong-arena/internal/game"
	"pong-arena/internal/metrics"
)

// DispatcherConfig tunes delivery.
type DispatcherConfig struct {
	QueueSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // per sink call
}

// DefaultDispatcherConfig returns the default delivery settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:      256,
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Timeout:        5 * time.Second,
	}
}

// Dispatcher delivers match summaries to a Sink from a single background goroutine.
// It wraps the sink and adds:
// - A bounded queue (Drop Newest when full)
// - User id resolution before delivery
// - Exponential backoff between failed attempts
//
// A MultiSink is split into its members and each member is retried on its
// own: a retry never repeats a delivery that already succeeded.
type Dispatcher struct {
	sinks    []Sink
	resolver UserResolver
	cfg      DispatcherConfig

	queue    chan game.MatchSummary
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Backoff state, owned by the dispatcher goroutine
	currentBackoff time.Duration
}

// NewDispatcher creates a stopped dispatcher. A nil resolver leaves summaries as they are.
func NewDispatcher(sink Sink, resolver UserResolver, cfg DispatcherConfig) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if resolver == nil {
		resolver = NopResolver{}
	}

	return &Dispatcher{
		sinks:    flatten(sink),
		resolver: resolver,
		cfg:      cfg,
		queue:    make(chan game.MatchSummary, cfg.QueueSize),
		quit:     make(chan struct{}),
	}
}

// Start begins the dispatcher loop.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go d.dispatcher()
	log.Println("📊 Stats dispatcher started")
}

// Stop delivers what is already queued (one attempt each) and waits for the loop to exit.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.wg.Wait()
		log.Println("📊 Stats dispatcher stopped")
	})
}

// Report queues a summary. Non-blocking: if the queue is full the summary is DROPPED.
// Its signature matches game.Reporter.
func (d *Dispatcher) Report(summary game.MatchSummary) {
	select {
	case d.queue <- summary:
	default:
		metrics.StatsFailed("queue_full")
		log.Printf("⚠️ Stats queue full, dropping match %s", summary.SessionID)
	}
}

func (d *Dispatcher) dispatcher() {
	defer d.wg.Done()

	for {
		select {
		case <-d.quit:
			d.drain()
			return
		case summary := <-d.queue:
			d.deliver(summary, d.cfg.MaxAttempts)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case summary := <-d.queue:
			d.deliver(summary, 1)
		default:
			return
		}
	}
}

// deliver resolves user ids and calls the sinks, backing off between
// attempts. Only the sinks that failed are called again.
func (d *Dispatcher) deliver(summary game.MatchSummary, attempts int) {
	summary = d.resolve(summary)

	pending := d.sinks
	for attempt := 1; attempt <= attempts; attempt++ {
		var err error
		pending, err = d.attempt(pending, summary)

		if len(pending) == 0 {
			metrics.StatsDelivered()
			if d.currentBackoff > 0 {
				d.currentBackoff = 0
				log.Println("✅ Stats sink recovered, backoff reset")
			}
			return
		}

		if attempt == attempts {
			metrics.StatsFailed("sink_error")
			log.Printf("❌ Giving up on match %s after %d attempts (%d sinks): %v",
				summary.SessionID, attempts, len(pending), err)
			return
		}

		d.bumpBackoff()
		log.Printf("⚠️ Stats sink failed for match %s (attempt %d): %v; retrying in %v",
			summary.SessionID, attempt, err, d.currentBackoff)

		select {
		case <-time.After(d.currentBackoff):
		case <-d.quit:
			// Shutting down: one last try without waiting
			attempts = attempt + 1
		}
	}
}

// attempt calls every sink once and returns the ones that failed.
func (d *Dispatcher) attempt(sinks []Sink, summary game.MatchSummary) ([]Sink, error) {
	var (
		failed []Sink
		errs   []error
	)
	for _, sink := range sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
		err := sink.ReportMatchFinished(ctx, summary)
		cancel()
		if err != nil {
			failed = append(failed, sink)
			errs = append(errs, err)
		}
	}
	return failed, errors.Join(errs...)
}

// flatten expands nested MultiSinks into their members.
func flatten(sink Sink) []Sink {
	multi, ok := sink.(MultiSink)
	if !ok {
		if sink == nil {
			return nil
		}
		return []Sink{sink}
	}
	var out []Sink
	for _, s := range multi {
		out = append(out, flatten(s)...)
	}
	return out
}

func (d *Dispatcher) bumpBackoff() {
	if d.currentBackoff == 0 {
		d.currentBackoff = d.cfg.InitialBackoff
		return
	}
	d.currentBackoff *= 2
	if d.currentBackoff > d.cfg.MaxBackoff {
		d.currentBackoff = d.cfg.MaxBackoff
	}
}

// resolve fills in missing user ids of human players. A miss or a resolver
// error leaves the player anonymous.
func (d *Dispatcher) resolve(summary game.MatchSummary) game.MatchSummary {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	lookup := func(p *game.Player) {
		if p.IsAI || p.UserID != "" || p.Name == "" {
			return
		}
		id, ok, err := d.resolver.ResolveUserID(ctx, p.Name)
		if err != nil {
			log.Printf("⚠️ Could not resolve user %q: %v", p.Name, err)
			return
		}
		if ok {
			p.UserID = id
		}
	}

	lookup(&summary.Player1)
	lookup(&summary.Player2)

	if summary.Winner != nil {
		w := *summary.Winner
		switch w.ID {
		case summary.Player1.ID:
			w.UserID = summary.Player1.UserID
		case summary.Player2.ID:
			w.UserID = summary.Player2.UserID
		}
		summary.Winner = &w
	}
	return summary
}

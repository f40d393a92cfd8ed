package game

import (
	"bufio"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"pong-arena/internal/metrics"
)

const (
	JournalBufferSize      = 1024                   // Pending entries before drops
	MaxJournalPerSec       = 2000                   // Global rate limit
	MaxJournalPerSession   = 50                     // Per-session rate limit per second
	JournalFlushSize       = 64                     // Entries per batch write
	JournalFlushInterval   = 100 * time.Millisecond // How often to flush
	SessionLimiterLifetime = 5 * time.Minute        // Idle per-session limiters are dropped after this
)

// JournalVersion for backwards compatibility when reading old journals
const JournalVersion uint8 = 1

// JournalEntry is one line of the match journal.
type JournalEntry struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	SessionID string          `json:"gameId"`
	Sequence  uint64          `json:"sequence"`
	Data      json.RawMessage `json:"data"`
}

// Journal is a bounded, rate-limited, append-only JSONL record of session
// lifecycle events. It implements EventSink; per-tick gameState events are
// not journaled.
type Journal struct {
	queue chan Event

	globalLimiter   *rate.Limiter
	sessionLimiters sync.Map // map[string]*sessionLimiterEntry

	writerWg sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
	running  atomic.Bool

	filePath string
	file     *os.File
	writer   *bufio.Writer
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type sessionLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewJournal creates a stopped journal.
func NewJournal() *Journal {
	return &Journal{
		queue:         make(chan Event, JournalBufferSize),
		globalLimiter: rate.NewLimiter(MaxJournalPerSec, MaxJournalPerSec/10),
		stopChan:      make(chan struct{}),
	}
}

// Start opens filePath for append and begins the async writer.
func (j *Journal) Start(filePath string) error {
	if j.running.Load() {
		return nil
	}

	j.filePath = filePath
	if filePath != "" {
		if dir := filepath.Dir(filePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return err
			}
		}
		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		j.file = file
		j.writer = bufio.NewWriter(file)
	}

	j.running.Store(true)
	j.writerWg.Add(2)
	go j.writerLoop()
	go j.cleanupLoop()

	log.Printf("📒 Match journal writing to %s", filePath)
	return nil
}

// Stop flushes pending entries and closes the file.
func (j *Journal) Stop() {
	j.stopOnce.Do(func() {
		j.running.Store(false)
		close(j.stopChan)
		j.writerWg.Wait()

		j.fileMu.Lock()
		if j.writer != nil {
			j.writer.Flush()
		}
		if j.file != nil {
			j.file.Close()
		}
		j.fileMu.Unlock()
	})
}

// Publish implements EventSink.
func (j *Journal) Publish(ev Event) {
	if ev.Type == EventGameState {
		return
	}
	j.Record(ev)
}

// Record enqueues an event. It returns false if the journal is stopped,
// rate limited or full.
func (j *Journal) Record(ev Event) bool {
	if !j.running.Load() {
		return false
	}

	if !j.globalLimiter.Allow() || !j.sessionLimiter(ev.SessionID).Allow() {
		j.drop()
		return false
	}

	select {
	case j.queue <- ev:
		atomic.AddUint64(&j.totalCount, 1)
		return true
	default:
		j.drop()
		return false
	}
}

func (j *Journal) drop() {
	atomic.AddUint64(&j.droppedCount, 1)
	metrics.JournalDropped()
}

func (j *Journal) sessionLimiter(sessionID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := j.sessionLimiters.Load(sessionID); ok {
		e := entry.(*sessionLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &sessionLimiterEntry{
		limiter: rate.NewLimiter(MaxJournalPerSession, MaxJournalPerSession),
	}
	entry.lastUsed.Store(now)
	actual, _ := j.sessionLimiters.LoadOrStore(sessionID, entry)
	return actual.(*sessionLimiterEntry).limiter
}

// writerLoop batches entries and writes them asynchronously.
func (j *Journal) writerLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(JournalFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, JournalFlushSize)

	for {
		select {
		case <-j.stopChan:
			// Final flush
			for {
				batch = j.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				j.flushBatch(batch)
			}

		case <-ticker.C:
			batch = j.collectBatch(batch[:0])
			if len(batch) > 0 {
				j.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop drops limiters of sessions that stopped producing events.
func (j *Journal) cleanupLoop() {
	defer j.writerWg.Done()

	ticker := time.NewTicker(SessionLimiterLifetime)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-SessionLimiterLifetime).UnixNano()
			j.sessionLimiters.Range(func(key, value interface{}) bool {
				if value.(*sessionLimiterEntry).lastUsed.Load() < cutoff {
					j.sessionLimiters.Delete(key)
				}
				return true
			})
		}
	}
}

func (j *Journal) collectBatch(batch []Event) []Event {
	for len(batch) < JournalFlushSize {
		select {
		case ev := <-j.queue:
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

// flushBatch appends newline-delimited JSON.
func (j *Journal) flushBatch(batch []Event) {
	j.fileMu.Lock()
	defer j.fileMu.Unlock()

	if j.writer == nil {
		return
	}

	for _, ev := range batch {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			log.Printf("⚠️ Journal: cannot encode %s for game %s: %v", ev.Type, ev.SessionID, err)
			continue
		}
		line, err := json.Marshal(JournalEntry{
			Version:   JournalVersion,
			Type:      ev.Type,
			Timestamp: ev.Timestamp.UnixNano(),
			SessionID: ev.SessionID,
			Sequence:  ev.Sequence,
			Data:      data,
		})
		if err != nil {
			continue
		}
		j.writer.Write(line)
		j.writer.WriteByte('\n')
		metrics.JournalWritten()
	}
	j.writer.Flush()
}

// GetStats returns counters for monitoring.
func (j *Journal) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"total":   atomic.LoadUint64(&j.totalCount),
		"dropped": atomic.LoadUint64(&j.droppedCount),
		"pending": len(j.queue),
		"running": j.running.Load(),
	}
}

// GetDroppedCount returns the number of dropped entries.
func (j *Journal) GetDroppedCount() uint64 {
	return atomic.LoadUint64(&j.droppedCount)
}

// GetTotalCount returns the number of accepted entries.
func (j *Journal) GetTotalCount() uint64 {
	return atomic.LoadUint64(&j.totalCount)
}

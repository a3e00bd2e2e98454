// Package eventlog implements the durable, append-only, multi-stream audit
// log. One run owns one Log instance, keyed by (correlation_id, pid); each
// event kind gets its own line-delimited JSON file under the run directory.
//
// The synchronous path appends and flushes inline and attaches no ordering
// metadata. The asynchronous path draws a strictly increasing global sequence
// number shared across all event kinds, stamps it into the event, and hands
// the serialized write to a background worker pool so the caller never blocks
// on I/O. Total order is carried by the stamped sequence number inside the
// payload, not by write-completion order.
package eventlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quantrove/vaultbot/internal/domain"
)

// Config holds the parameters for one per-run log instance.
type Config struct {
	// Dir is the base directory; the run directory is created beneath it.
	Dir string
	// CorrelationID and PID namespace the run directory and the sequence
	// counter. The counter is never shared across processes.
	CorrelationID string
	PID           int
	// QueueSize bounds the async write queue (default 1024).
	QueueSize int
	// Workers is the size of the background write pool (default 4).
	Workers int
}

func (c Config) withDefaults() Config {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

type writeReq struct {
	kind domain.EventKind
	line []byte
}

// Log is one run's audit log. Safe for concurrent use; the sequence counter
// is the only synchronized critical section on the async path.
type Log struct {
	cfg    Config
	runDir string
	logger *slog.Logger // side channel for persistence failures

	seq atomic.Uint64

	mu      sync.Mutex
	streams map[domain.EventKind]*stream

	ch        chan writeReq
	wg        sync.WaitGroup
	producers sync.WaitGroup
	closed    atomic.Bool
}

// stream is one append-only kind file. Its mutex serializes appends from the
// worker pool and the synchronous path.
type stream struct {
	mu sync.Mutex
	f  *os.File
}

// New creates the run directory and starts the background write pool.
func New(cfg Config, logger *slog.Logger) (*Log, error) {
	cfg = cfg.withDefaults()
	if cfg.CorrelationID == "" {
		return nil, domain.NewConfigError("eventlog", "correlation id is required")
	}
	runDir := RunDir(cfg.Dir, cfg.CorrelationID, cfg.PID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, fmt.Errorf("eventlog: create run dir: %w", err)
	}

	l := &Log{
		cfg:     cfg,
		runDir:  runDir,
		logger:  logger.With(slog.String("component", "eventlog")),
		streams: make(map[domain.EventKind]*stream),
		ch:      make(chan writeReq, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		l.wg.Add(1)
		go l.worker()
	}
	return l, nil
}

// RunDir returns the per-run directory path for a (correlation_id, pid) pair.
func RunDir(base, correlationID string, pid int) string {
	return filepath.Join(base, fmt.Sprintf("%s-%d", correlationID, pid))
}

// Dir returns the run directory of this log instance.
func (l *Log) Dir() string { return l.runDir }

// CorrelationID returns the run's correlation id.
func (l *Log) CorrelationID() string { return l.cfg.CorrelationID }

// Sequence returns the last issued global sequence number.
func (l *Log) Sequence() uint64 { return l.seq.Load() }

// stamp fills in the run identity and capture time.
func (l *Log) stamp(ev *domain.Event) {
	ev.CorrelationID = l.cfg.CorrelationID
	ev.PID = l.cfg.PID
	ev.CapturedAt = time.Now().UTC()
}

// Log appends an event synchronously: serialize, append, flush. No ordering
// metadata is attached on this path.
func (l *Log) Log(ev domain.Event) error {
	if l.closed.Load() {
		return domain.ErrLogClosed
	}
	l.stamp(&ev)
	ev.Order = 0
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("eventlog: marshal %s event: %w", ev.Kind, err)
	}
	return l.append(ev.Kind, line)
}

// LogAsync stamps the next global sequence number into the event and hands
// the write to the background pool. It returns the issued sequence number.
// A write failure (including a full queue) is reported on the side channel
// and the sequence number is not reclaimed, so monotonicity holds even
// through failures.
func (l *Log) LogAsync(ev domain.Event) (uint64, error) {
	if l.closed.Load() {
		return 0, domain.ErrLogClosed
	}
	l.producers.Add(1)
	defer l.producers.Done()
	if l.closed.Load() {
		// Close started between the first check and Add; the queue may be
		// closing, so do not enqueue.
		return 0, domain.ErrLogClosed
	}

	seq := l.seq.Add(1)
	l.stamp(&ev)
	ev.Order = seq

	line, err := json.Marshal(ev)
	if err != nil {
		l.sideChannel(ev.Kind, seq, fmt.Errorf("marshal: %w", err))
		return seq, nil
	}
	select {
	case l.ch <- writeReq{kind: ev.Kind, line: line}:
	default:
		l.sideChannel(ev.Kind, seq, fmt.Errorf("async queue full (%d)", l.cfg.QueueSize))
	}
	return seq, nil
}

func (l *Log) worker() {
	defer l.wg.Done()
	for req := range l.ch {
		if err := l.append(req.kind, req.line); err != nil {
			l.sideChannel(req.kind, 0, err)
		}
	}
}

// sideChannel records a persistence failure without propagating it. Failed
// writes are terminal for that one event: no retry, no sequence reuse.
func (l *Log) sideChannel(kind domain.EventKind, seq uint64, err error) {
	l.logger.Error("event write failed",
		slog.String("kind", string(kind)),
		slog.Uint64("order", seq),
		slog.String("error", err.Error()),
	)
}

// append writes one line to the kind's stream file.
func (l *Log) append(kind domain.EventKind, line []byte) error {
	s, err := l.stream(kind)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("eventlog: append %s: %w", kind, err)
	}
	return nil
}

// stream returns the open file for a kind, opening it on first use.
func (l *Log) stream(kind domain.EventKind) (*stream, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.streams[kind]; ok {
		return s, nil
	}
	path := filepath.Join(l.runDir, string(kind)+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("eventlog: open stream %s: %w", kind, err)
	}
	s := &stream{f: f}
	l.streams[kind] = s
	return s, nil
}

// Close drains the async queue, waits for the pool, and closes every stream.
// Further Log/LogAsync calls return ErrLogClosed.
func (l *Log) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.producers.Wait()
	close(l.ch)
	l.wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for kind, s := range l.streams {
		s.mu.Lock()
		if err := s.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("eventlog: close stream %s: %w", kind, err)
		}
		s.mu.Unlock()
	}
	return firstErr
}

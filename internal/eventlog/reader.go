package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/quantrove/vaultbot/internal/domain"
)

// maxLineBytes bounds a single event line during replay.
const maxLineBytes = 1 << 20

// Reader replays a run directory's streams. Each stream is independently
// readable; no stream requires any other to be present.
type Reader struct {
	runDir string
}

// NewReader creates a Reader over an existing run directory.
func NewReader(runDir string) *Reader {
	return &Reader{runDir: runDir}
}

// ReadAll returns every event of one kind in physical append order.
// A missing stream file yields an empty slice, not an error.
func (r *Reader) ReadAll(kind domain.EventKind) ([]domain.Event, error) {
	path := filepath.Join(r.runDir, string(kind)+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("eventlog: open stream %s: %w", kind, err)
	}
	defer f.Close()

	var events []domain.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("eventlog: parse %s line %d: %w", kind, lineNo, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("eventlog: scan stream %s: %w", kind, err)
	}
	return events, nil
}

// TailLatest returns the last event of one kind, or ErrNotFound for an empty
// or missing stream.
func (r *Reader) TailLatest(kind domain.EventKind) (domain.Event, error) {
	events, err := r.ReadAll(kind)
	if err != nil {
		return domain.Event{}, err
	}
	if len(events) == 0 {
		return domain.Event{}, domain.ErrNotFound
	}
	return events[len(events)-1], nil
}

// ReadOrdered merges every stream's async-stamped events and returns them
// sorted by their global sequence number. Events logged on the synchronous
// path carry no sequence number and are excluded.
func (r *Reader) ReadOrdered() ([]domain.Event, error) {
	var all []domain.Event
	for _, kind := range domain.EventKinds {
		events, err := r.ReadAll(kind)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.Order > 0 {
				all = append(all, ev)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Order < all[j].Order })
	return all, nil
}

// VerifyOrdering checks that the merged async sequence is strictly increasing
// with no duplicates. Gaps are tolerated (a failed write keeps its issued
// number) and returned as a count; a duplicate or regression means the log is
// corrupt. Returns the highest sequence seen and the number of gaps.
func (r *Reader) VerifyOrdering() (uint64, int, error) {
	all, err := r.ReadOrdered()
	if err != nil {
		return 0, 0, err
	}
	var prev uint64
	gaps := 0
	for _, ev := range all {
		if ev.Order <= prev {
			return prev, gaps, fmt.Errorf("eventlog: duplicate sequence %d (kind %s)", ev.Order, ev.Kind)
		}
		if ev.Order != prev+1 {
			gaps++
		}
		prev = ev.Order
	}
	return prev, gaps, nil
}

// Package snowflake generates 64-bit, time-ordered, collision-free
// identifiers used to tag cached artifacts and correlate data across
// parallel test workers.
//
// Layout, most significant bit first:
//
//	1 bit  reserved sign bit, always 0
//	41 bits milliseconds since the custom epoch (2020-01-01T00:00:00Z)
//	10 bits worker discriminator (0-1023)
//	12 bits per-millisecond sequence (0-4095)
//
// Identifiers from one Generator are strictly increasing in generation
// order. Across workers, the discriminator keeps identifiers from colliding;
// ordering between workers is only guaranteed to the millisecond.
package snowflake

import (
	"fmt"
	"sync"
	"time"

	"harness/config"
)

// Epoch is the custom epoch in Unix milliseconds (2020-01-01T00:00:00Z).
const Epoch int64 = 1577836800000

const (
	workerBits   = 10
	sequenceBits = 12

	// MaxWorker is the largest valid worker discriminator.
	MaxWorker = (1 << workerBits) - 1
	// MaxSequence is the largest per-millisecond sequence value.
	MaxSequence = (1 << sequenceBits) - 1

	workerShift    = sequenceBits
	timestampShift = workerBits + sequenceBits
)

// ID is a generated 64-bit identifier.
type ID uint64

// Timestamp recovers the embedded generation time, at millisecond resolution.
func (id ID) Timestamp() time.Time {
	ms := int64(id>>timestampShift) + Epoch
	return time.UnixMilli(ms).UTC()
}

// Worker recovers the embedded worker discriminator.
func (id ID) Worker() int {
	return int((id >> workerShift) & MaxWorker)
}

// Sequence recovers the embedded per-millisecond sequence.
func (id ID) Sequence() int {
	return int(id & MaxSequence)
}

// ClockRegressionError reports that the system clock moved backward relative
// to the last issued identifier. The generator never masks this: silently
// emitting an identifier would risk a duplicate or out-of-order value, and
// downstream correlation depends on uniqueness. The caller decides whether
// to wait for the clock to catch up or to abort.
type ClockRegressionError struct {
	Last time.Time
	Now  time.Time
}

func (e *ClockRegressionError) Error() string {
	return fmt.Sprintf("system clock moved backward: last id issued at %s, clock now reads %s (drift %s)",
		e.Last.Format(time.RFC3339Nano), e.Now.Format(time.RFC3339Nano), e.Last.Sub(e.Now))
}

// Generator issues identifiers for one worker. All state is guarded by a
// single mutex so concurrent callers never observe the same
// (timestamp, sequence) pair.
type Generator struct {
	mu       sync.Mutex
	now      func() int64 // current time in Unix milliseconds
	worker   uint64
	lastTime int64
	sequence uint64
}

// New creates a Generator for the given worker discriminator.
func New(worker int) (*Generator, error) {
	if worker < 0 || worker > MaxWorker {
		return nil, fmt.Errorf("worker discriminator must be in [0, %d], got %d", MaxWorker, worker)
	}
	return &Generator{
		now:      func() int64 { return time.Now().UnixMilli() },
		worker:   uint64(worker),
		lastTime: -1,
	}, nil
}

// FromConfig derives the worker discriminator from the resolved parallel
// execution settings: the process's worker index modulo the discriminator
// space, or 0 for a single-worker run.
func FromConfig(snap *config.Snapshot) (*Generator, error) {
	if snap.WorkerCount() <= 1 {
		return New(0)
	}
	return New(config.WorkerIndex() % (MaxWorker + 1))
}

// Next issues the next identifier. Within one millisecond the sequence
// increments; when it overflows, Next busy-waits for the next millisecond
// tick (bounded by at most one tick) and resets the sequence. A backward
// clock step returns a *ClockRegressionError with internal state untouched,
// so a later call with a restored clock succeeds normally.
func (g *Generator) Next() (ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < Epoch {
		// A pre-epoch clock would wrap the elapsed-time field; refuse it the
		// same way as a backward step past the last issued identifier.
		return 0, &ClockRegressionError{
			Last: time.UnixMilli(Epoch).UTC(),
			Now:  time.UnixMilli(now).UTC(),
		}
	}
	if now < g.lastTime {
		return 0, &ClockRegressionError{
			Last: time.UnixMilli(g.lastTime).UTC(),
			Now:  time.UnixMilli(now).UTC(),
		}
	}

	if now == g.lastTime {
		g.sequence++
		if g.sequence > MaxSequence {
			for now <= g.lastTime {
				now = g.now()
			}
			g.sequence = 0
			g.lastTime = now
		}
	} else {
		g.sequence = 0
		g.lastTime = now
	}

	return compose(now, g.worker, g.sequence), nil
}

// Worker returns the generator's discriminator.
func (g *Generator) Worker() int {
	return int(g.worker)
}

func compose(unixMilli int64, worker, sequence uint64) ID {
	elapsed := uint64(unixMilli - Epoch)
	return ID(elapsed<<timestampShift | worker<<workerShift | sequence)
}

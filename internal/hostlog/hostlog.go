// Package hostlog bridges extension log output to both the process-wide
// logrus logger and a bounded in-memory ring buffer, so a host HTTP endpoint
// can tail recent extension output without a log-aggregation dependency.
package hostlog

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Stasshe/Pyxis-CodeCanvas-sub005/internal/extension"
)

// DefaultCapacity is the number of entries the ring buffer retains before it
// starts overwriting the oldest ones.
const DefaultCapacity = 500

// Entry is one recorded log line, timestamped at arrival. Message already
// carries the "[extensionId] " prefix the extension.Logger applies before
// handing the line to a LogSink.
type Entry struct {
	Time     time.Time             `json:"time"`
	Severity extension.LogSeverity `json:"severity"`
	Channel  string                `json:"channel"`
	Message  string                `json:"message"`
}

// Buffer is a fixed-capacity ring buffer of log Entries, safe for concurrent
// use as an extension.LogSink.
type Buffer struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	next     int
	full     bool
}

// NewBuffer builds a Buffer holding at most capacity entries. A
// non-positive capacity falls back to DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{entries: make([]Entry, capacity), capacity: capacity}
}

// Sink returns the extension.LogSink this buffer records through, also
// mirroring every line to the package-level logrus logger. One Buffer's
// Sink is shared across every extension; the [extensionId] prefix already
// on message is what distinguishes them in the tail.
func (b *Buffer) Sink() extension.LogSink {
	return func(message string, severity extension.LogSeverity, channel string) {
		b.record(Entry{Time: time.Now(), Severity: severity, Channel: channel, Message: message})
		switch severity {
		case extension.SeverityWarn:
			log.Warn(message)
		case extension.SeverityError:
			log.Error(message)
		default:
			log.Info(message)
		}
	}
}

func (b *Buffer) record(e Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[b.next] = e
	b.next = (b.next + 1) % b.capacity
	if b.next == 0 {
		b.full = true
	}
}

// Tail returns up to n most recent entries, oldest first. n <= 0 returns
// every retained entry.
func (b *Buffer) Tail(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []Entry
	if b.full {
		ordered = append(ordered, b.entries[b.next:]...)
		ordered = append(ordered, b.entries[:b.next]...)
	} else {
		ordered = append(ordered, b.entries[:b.next]...)
	}

	if n <= 0 || n >= len(ordered) {
		return ordered
	}
	return ordered[len(ordered)-n:]
}

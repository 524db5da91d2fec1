// Package activity is the append-only, user-visible activity log.
//
// Entries are appended under a single lock so a multi-line entry is never
// interleaved with another. Readers either snapshot the log with String or
// Entries, or Subscribe to receive new entries as they are appended.
// Delivery to subscribers never blocks the writer: a subscriber whose buffer
// is full misses entries and can resynchronize from a snapshot.
package activity

import (
	"log/slog"
	"strings"
	"sync"
)

// Banner is the first line of a fresh activity log.
const Banner = "Device information will appear here after installing the profile..."

const subscriberBuffer = 64

// Log is an append-only, in-memory log safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []string
	subs    map[int]chan string
	nextSub int
	logger  *slog.Logger
}

// New creates a log whose first entry is banner. An empty banner starts empty.
// Every appended entry is mirrored to logger at info level when logger is non-nil.
func New(banner string, logger *slog.Logger) *Log {
	l := &Log{
		subs:   make(map[int]chan string),
		logger: logger,
	}
	if banner != "" {
		l.entries = append(l.entries, banner)
	}
	return l
}

// Append adds one entry. Entries may span multiple lines.
func (l *Log) Append(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	for _, ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}

	if l.logger != nil {
		l.logger.Info(strings.TrimSpace(entry), "source", "activity")
	}
}

// Entries returns a copy of all entries in append order.
func (l *Log) Entries() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// String renders the log the way it is displayed: each entry followed by a newline.
func (l *Log) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var b strings.Builder
	for _, e := range l.entries {
		b.WriteString(e)
		b.WriteByte('\n')
	}
	return b.String()
}

// Subscribe returns a channel receiving entries appended after the call and a
// cancel func that unregisters and closes it.
func (l *Log) Subscribe() (<-chan string, func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextSub
	l.nextSub++
	ch := make(chan string, subscriberBuffer)
	l.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

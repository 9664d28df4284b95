// internal/logger/journal.go
package logger

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Level is the severity of a journal event.
type Level string

const (
	LevelInfo    Level = "INFO"
	LevelSuccess Level = "SUCCESS"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

const (
	DefaultGlobalSize  = 2000
	DefaultSessionSize = 500
)

// Sink receives leveled, session-tagged events. Implementations must not
// block the caller and must never fail.
type Sink interface {
	Log(level Level, sessionID, message string)
}

// Entry is one journal event.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	SessionID string    `json:"session_id,omitempty"`
	Message   string    `json:"message"`
}

// Journal keeps the most recent events globally and per session and
// mirrors each event into zap.
type Journal struct {
	mu          sync.Mutex
	global      *entryRing
	sessions    map[string]*entryRing
	sessionSize int
	logger      *zap.Logger
	total       uint64
}

// NewJournal creates a journal. Non-positive sizes fall back to the defaults.
func NewJournal(logger *zap.Logger, globalSize, sessionSize int) *Journal {
	if globalSize <= 0 {
		globalSize = DefaultGlobalSize
	}
	if sessionSize <= 0 {
		sessionSize = DefaultSessionSize
	}
	return &Journal{
		global:      newEntryRing(globalSize),
		sessions:    make(map[string]*entryRing),
		sessionSize: sessionSize,
		logger:      logger.Named("journal"),
	}
}

// Log implements Sink.
func (j *Journal) Log(level Level, sessionID, message string) {
	entry := Entry{
		Timestamp: time.Now(),
		Level:     level,
		SessionID: sessionID,
		Message:   message,
	}

	j.mu.Lock()
	j.global.add(entry)
	if sessionID != "" {
		r, ok := j.sessions[sessionID]
		if !ok {
			r = newEntryRing(j.sessionSize)
			j.sessions[sessionID] = r
		}
		r.add(entry)
	}
	j.total++
	j.mu.Unlock()

	j.mirror(entry)
}

func (j *Journal) mirror(e Entry) {
	fields := make([]zap.Field, 0, 1)
	if e.SessionID != "" {
		fields = append(fields, zap.String("session_id", e.SessionID))
	}
	switch e.Level {
	case LevelError:
		j.logger.Error(e.Message, fields...)
	case LevelWarning:
		j.logger.Warn(e.Message, fields...)
	case LevelSuccess:
		j.logger.Info(e.Message, append(fields, zap.Bool("success", true))...)
	default:
		j.logger.Info(e.Message, fields...)
	}
}

// Recent returns up to limit most recent events, oldest first. A
// non-positive limit returns everything retained.
func (j *Journal) Recent(limit int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.global.recent(limit)
}

// Session returns up to limit most recent events of one session.
func (j *Journal) Session(sessionID string, limit int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()
	r, ok := j.sessions[sessionID]
	if !ok {
		return nil
	}
	return r.recent(limit)
}

// Forget drops the per-session history, e.g. after the session is evicted.
func (j *Journal) Forget(sessionID string) {
	j.mu.Lock()
	delete(j.sessions, sessionID)
	j.mu.Unlock()
}

// Total returns how many events were logged since creation.
func (j *Journal) Total() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.total
}

// Logf formats and logs through any sink; a nil sink is ignored.
func Logf(s Sink, level Level, sessionID, format string, args ...interface{}) {
	if s == nil {
		return
	}
	s.Log(level, sessionID, fmt.Sprintf(format, args...))
}

// NopSink discards every event.
type NopSink struct{}

// Log implements Sink.
func (NopSink) Log(Level, string, string) {}

// entryRing is a fixed-size ring buffer of entries.
type entryRing struct {
	entries      []Entry
	currentIndex int
	wrapped      bool
}

func newEntryRing(size int) *entryRing {
	return &entryRing{entries: make([]Entry, size)}
}

func (r *entryRing) add(e Entry) {
	r.entries[r.currentIndex] = e
	r.currentIndex = (r.currentIndex + 1) % len(r.entries)
	if r.currentIndex == 0 {
		r.wrapped = true
	}
}

func (r *entryRing) recent(limit int) []Entry {
	count := r.currentIndex
	start := 0
	if r.wrapped {
		count = len(r.entries)
		start = r.currentIndex
	}
	skip := 0
	if limit > 0 && limit < count {
		skip = count - limit
	}

	out := make([]Entry, 0, count-skip)
	for i := skip; i < count; i++ {
		out = append(out, r.entries[(start+i)%len(r.entries)])
	}
	return out
}

package events

import (
	"strings"
	"sync"
	"time"
)

// DefaultTraceSize bounds how many records a Trace keeps
const DefaultTraceSize = 500

// Trace is an ordered, bounded log of a session's events. When full, the
// oldest records are dropped. It is safe for concurrent use.
type Trace struct {
	SessionID string
	StartedAt time.Time

	mu      sync.Mutex
	max     int
	dropped int
	records []Record
	now     func() time.Time
}

// NewTrace creates a trace keeping at most max records; max <= 0 uses DefaultTraceSize
func NewTrace(sessionID string, max int) *Trace {
	if max <= 0 {
		max = DefaultTraceSize
	}
	return &Trace{
		SessionID: sessionID,
		StartedAt: time.Now().UTC(),
		max:       max,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Add appends events attributed to agent
func (t *Trace) Add(agent string, evs ...Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		t.records = append(t.records, Record{Timestamp: t.now(), Agent: agent, Event: ev})
	}
	if over := len(t.records) - t.max; over > 0 {
		t.records = append([]Record(nil), t.records[over:]...)
		t.dropped += over
	}
}

// Records returns a copy of the retained records, oldest first
func (t *Trace) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

// Last returns up to n most recent records, oldest first
func (t *Trace) Last(n int) []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= 0 {
		return []Record{}
	}
	start := max(0, len(t.records)-n)
	out := make([]Record, len(t.records)-start)
	copy(out, t.records[start:])
	return out
}

// Len returns the number of retained records
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// Dropped returns how many records were evicted
func (t *Trace) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// FinalResponse concatenates every retained FinalAnswer in order
func (t *Trace) FinalResponse() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	for _, r := range t.records {
		if fa, ok := r.Event.(FinalAnswer); ok {
			b.WriteString(fa.Text)
		}
	}
	return b.String()
}

// TotalTokens sums every retained TokenUsage
func (t *Trace) TotalTokens() TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	var sum TokenUsage
	for _, r := range t.records {
		if u, ok := r.Event.(TokenUsage); ok {
			sum.PromptTokens += u.PromptTokens
			sum.CandidatesTokens += u.CandidatesTokens
			sum.ThoughtsTokens += u.ThoughtsTokens
			sum.CachedTokens += u.CachedTokens
			sum.TotalTokens += u.TotalTokens
		}
	}
	return sum
}

package server

import (
	"strings"
	"sync"
	"time"
)

// FoodLogEntry is one committed food in the daily log.
type FoodLogEntry struct {
	Food     string `json:"food"`
	Calories int    `json:"calories"`
}

// Session holds one user's chat history and daily food log. All mutation goes
// through the mutex; concurrent requests for the same session serialize here.
type Session struct {
	mu            sync.Mutex
	id            string
	historyLimit  int
	history       []ChatTurn
	lastIntent    intent
	entries       []FoodLogEntry
	lastResetDate string
}

func newSession(id string, historyLimit int, now time.Time) *Session {
	if historyLimit <= 0 {
		historyLimit = 25
	}
	return &Session{
		id:            id,
		historyLimit:  historyLimit,
		history:       make([]ChatTurn, 0, historyLimit),
		lastIntent:    intentNone,
		entries:       make([]FoodLogEntry, 0, 8),
		lastResetDate: dayKey(now),
	}
}

func (s *Session) ID() string {
	return s.id
}

// AppendTurn records a chat turn, evicting the oldest once the cap is hit.
func (s *Session) AppendTurn(role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history = append(s.history, ChatTurn{Role: role, Content: content})
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
}

func (s *Session) HistorySnapshot() []ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]ChatTurn, len(s.history))
	copy(snapshot, s.history)
	return snapshot
}

func (s *Session) LastIntent() intent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastIntent
}

func (s *Session) SetLastIntent(value intent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastIntent = value
}

// RolloverIfNeeded clears the food log when the calendar day changed since the
// last reset. Silent and automatic; reports whether a rollover happened.
func (s *Session) RolloverIfNeeded(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := dayKey(now)
	if s.lastResetDate == today {
		return false
	}
	s.entries = s.entries[:0]
	s.lastResetDate = today
	return true
}

func (s *Session) AddEntries(items []FoodLogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, items...)
}

// RemoveByFood drops every entry whose name matches case-insensitively and
// returns how many were removed.
func (s *Session) RemoveByFood(food string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := strings.ToLower(strings.TrimSpace(food))
	kept := s.entries[:0]
	removed := 0
	for _, entry := range s.entries {
		if strings.ToLower(strings.TrimSpace(entry.Food)) == target {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	s.entries = kept
	return removed
}

func (s *Session) Reset(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = s.entries[:0]
	s.lastResetDate = dayKey(now)
}

func (s *Session) Entries() []FoodLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]FoodLogEntry, len(s.entries))
	copy(snapshot, s.entries)
	return snapshot
}

// TotalCalories recomputes the sum on every read so the reported total can
// never drift from the log contents.
func (s *Session) TotalCalories() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	for _, entry := range s.entries {
		total += entry.Calories
	}
	return total
}

// dayKey is the calendar-day marker used for the daily reset rule, in the
// server's local timezone.
func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

const defaultSessionID = "default"

type sessionManager struct {
	mu           sync.Mutex
	historyLimit int
	sessions     map[string]*Session
}

func newSessionManager(historyLimit int) *sessionManager {
	return &sessionManager{
		historyLimit: historyLimit,
		sessions:     make(map[string]*Session),
	}
}

// Get returns the session for the given ID, creating it on first use.
// The second result reports whether the session was just created.
func (m *sessionManager) Get(id string, now time.Time) (*Session, bool) {
	if strings.TrimSpace(id) == "" {
		id = defaultSessionID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if session, ok := m.sessions[id]; ok {
		return session, false
	}
	session := newSession(id, m.historyLimit, now)
	m.sessions[id] = session
	return session, true
}

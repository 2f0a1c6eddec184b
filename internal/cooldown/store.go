// Package cooldown tracks when each SKU's price history was last fetched so
// the expensive per-item history call is made at most once per window.
//
// The Store is purely in-memory. Loading and saving it is the job of a
// Backend wrapped around a whole monitoring cycle.
package cooldown

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// timestampLayouts are tried in order when reading an entry. Zoned forms are
// what this program writes; the naive forms are what older state files hold
// and are read as local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses a stored fetch timestamp.
func ParseTimestamp(s string) (time.Time, bool) {
	for i, layout := range timestampLayouts {
		var (
			t   time.Time
			err error
		)
		if i == 0 || i == 2 {
			t, err = time.Parse(layout, s)
		} else {
			t, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatTimestamp renders a fetch time the way the Store persists it.
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

// Entry is one SKU's fetch record.
type Entry struct {
	SKU       string    `json:"sku"`
	Raw       string    `json:"raw"`
	FetchedAt time.Time `json:"fetched_at"`
	Valid     bool      `json:"valid"`
}

// Store maps SKU to last successful history fetch time.
//
// A disabled Store never reports a cooldown and records nothing, so every
// item's history is fetched every cycle.
type Store struct {
	mu      sync.RWMutex
	entries map[string]string
	window  time.Duration
	enabled bool
	logger  *slog.Logger
}

// New creates an empty Store with the given cooldown window.
func New(window time.Duration, enabled bool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		entries: make(map[string]string),
		window:  window,
		enabled: enabled,
		logger:  logger,
	}
}

// Enabled reports whether the Store gates and records fetches.
func (s *Store) Enabled() bool { return s.enabled }

// Window returns the cooldown window.
func (s *Store) Window() time.Duration { return s.window }

// Replace swaps the Store contents for a freshly loaded mapping.
func (s *Store) Replace(m map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]string, len(m))
	if !s.enabled {
		return
	}
	for k, v := range m {
		s.entries[k] = v
	}
}

// OnCooldown reports whether sku was fetched less than one window before now.
// Entries with unparseable timestamps are not on cooldown.
func (s *Store) OnCooldown(sku string, now time.Time) bool {
	if !s.enabled {
		return false
	}
	s.mu.RLock()
	raw, ok := s.entries[sku]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	last, ok := ParseTimestamp(raw)
	if !ok {
		s.logger.Warn("Invalid fetch timestamp, will fetch", "sku", sku, "timestamp", raw)
		return false
	}
	return now.Sub(last) < s.window
}

// RecordFetch overwrites the fetch time for sku.
func (s *Store) RecordFetch(sku string, now time.Time) {
	if !s.enabled {
		return
	}
	s.mu.Lock()
	s.entries[sku] = FormatTimestamp(now)
	s.mu.Unlock()
}

// Prune removes the oldest entries until at most maxEntries remain. Only
// entries with parseable timestamps are candidates; corrupt entries still
// count toward the total, so the Store can stay above maxEntries by the
// number of corrupt entries. It returns the number of entries removed.
func (s *Store) Prune(maxEntries int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxEntries < 0 || len(s.entries) <= maxEntries {
		return 0
	}

	type dated struct {
		sku string
		at  time.Time
	}
	valid := make([]dated, 0, len(s.entries))
	for sku, raw := range s.entries {
		at, ok := ParseTimestamp(raw)
		if !ok {
			s.logger.Warn("Invalid fetch timestamp during pruning, skipping entry", "sku", sku, "timestamp", raw)
			continue
		}
		valid = append(valid, dated{sku, at})
	}
	sort.Slice(valid, func(i, j int) bool {
		if valid[i].at.Equal(valid[j].at) {
			return valid[i].sku < valid[j].sku
		}
		return valid[i].at.Before(valid[j].at)
	})

	n := min(len(s.entries)-maxEntries, len(valid))
	for _, e := range valid[:n] {
		delete(s.entries, e.sku)
	}
	if n > 0 {
		s.logger.Info("Pruned oldest SKU fetch timestamps", "pruned", n, "remaining", len(s.entries), "max", maxEntries)
	}
	return n
}

// Len returns the number of entries, corrupt ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the raw SKU → timestamp mapping.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Entries returns all entries sorted newest first; corrupt entries last.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.entries))
	for sku, raw := range s.entries {
		e := Entry{SKU: sku, Raw: raw}
		e.FetchedAt, e.Valid = ParseTimestamp(raw)
		out = append(out, e)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Valid != b.Valid {
			return a.Valid
		}
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.After(b.FetchedAt)
		}
		return a.SKU < b.SKU
	})
	return out
}

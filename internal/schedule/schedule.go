package schedule

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/guidoenr/fantasia/internal/config"
)

// IsInTimeSlot reports whether now falls inside any slot. Slot bounds are
// inclusive at minute granularity.
func IsInTimeSlot(slots []config.TimeSlot, now time.Time) bool {
	day := int(now.Weekday())
	minutes := now.Hour()*60 + now.Minute()
	for _, s := range slots {
		if s.DayOfWeek != day {
			continue
		}
		if minutes >= s.StartMinutes() && minutes <= s.EndMinutes() {
			return true
		}
	}
	return false
}

// NextStart returns the earliest slot start strictly after now. A slot that
// starts at the current minute or earlier today is moved to next week.
func NextStart(slots []config.TimeSlot, now time.Time) (time.Time, bool) {
	var best time.Time
	found := false
	day := int(now.Weekday())
	current := now.Hour()*60 + now.Minute()
	for _, s := range slots {
		days := s.DayOfWeek - day
		if days < 0 || (days == 0 && s.StartMinutes() <= current) {
			days += 7
		}
		y, m, d := now.Date()
		start := time.Date(y, m, d+days, 0, 0, 0, 0, now.Location()).Add(time.Duration(s.StartMinutes()) * time.Minute)
		if !start.After(now) {
			continue
		}
		if !found || start.Before(best) {
			best = start
			found = true
		}
	}
	return best, found
}

// Selection is the result of matching the table against the clock.
type Selection struct {
	Config    config.MeetingConfig
	Active    bool
	NextStart time.Time
}

// Current returns the first package whose schedule is active, or else the
// package that starts soonest.
func Current(table config.Table, now time.Time) (Selection, bool) {
	for _, c := range table {
		if IsInTimeSlot(c.Schedule, now) {
			return Selection{Config: c, Active: true}, true
		}
	}

	var next Selection
	found := false
	for _, c := range table {
		start, ok := NextStart(c.Schedule, now)
		if !ok {
			continue
		}
		if !found || start.Before(next.NextStart) {
			next = Selection{Config: c, NextStart: start}
			found = true
		}
	}
	return next, found
}

// FindByQuery matches q against ids exactly, then case-insensitively as a
// substring of an id or name.
func FindByQuery(table config.Table, q string) (config.MeetingConfig, bool) {
	if q == "" {
		return config.MeetingConfig{}, false
	}
	if c, ok := table.Find(q); ok {
		return c, true
	}
	lower := strings.ToLower(q)
	for _, c := range table {
		if strings.Contains(strings.ToLower(c.ID), lower) || strings.Contains(strings.ToLower(c.Name), lower) {
			return c, true
		}
	}
	return config.MeetingConfig{}, false
}

// Reason says which rule picked a package.
type Reason string

const (
	ReasonQuery    Reason = "query"
	ReasonOverride Reason = "override"
	ReasonSchedule Reason = "schedule"
	ReasonCatchUp  Reason = "catch-up"
	ReasonDefault  Reason = "default"
)

// Overrides supplies a manually forced package id.
type Overrides interface {
	Active(now time.Time) (string, bool)
}

// Resolver picks the package to show.
type Resolver struct {
	mu        sync.Mutex
	table     config.Table
	query     string
	overrides Overrides
	rng       *rand.Rand

	// The random catch-up pick is kept while the same slot stays active.
	catchUpSlot string
	catchUpPick config.MeetingConfig
}

// NewResolver creates a resolver. overrides and rng may be nil.
func NewResolver(table config.Table, query string, overrides Overrides, rng *rand.Rand) *Resolver {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Resolver{table: table, query: query, overrides: overrides, rng: rng}
}

// SetTable swaps the table, e.g. after a reload.
func (r *Resolver) SetTable(t config.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table = t
	r.catchUpSlot = ""
}

// Table returns the current table.
func (r *Resolver) Table() config.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.table
}

// SetQuery replaces the query override. An empty query disables it.
func (r *Resolver) SetQuery(q string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.query = q
}

// Resolve applies, in order: the query, a live override of a non-daily
// package, the active schedule slot (catch-up slots pick a random non-daily
// package), and finally the default package.
func (r *Resolver) Resolve(now time.Time) (config.MeetingConfig, Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := FindByQuery(r.table, r.query); ok {
		return c, ReasonQuery
	}

	if r.overrides != nil {
		if id, ok := r.overrides.Active(now); ok {
			if c, ok := r.table.NonDaily().Find(id); ok {
				return c, ReasonOverride
			}
		}
	}

	if sel, ok := Current(r.table, now); ok && sel.Active {
		if sel.Config.Type != config.TypeCatchUp {
			r.catchUpSlot = ""
			return sel.Config, ReasonSchedule
		}
		if r.catchUpSlot != sel.Config.ID {
			pool := r.table.NonDaily()
			if len(pool) == 0 {
				return sel.Config, ReasonSchedule
			}
			r.catchUpSlot = sel.Config.ID
			r.catchUpPick = pool[r.rng.Intn(len(pool))]
		}
		return r.catchUpPick, ReasonCatchUp
	}

	r.catchUpSlot = ""
	return r.table.Default(), ReasonDefault
}

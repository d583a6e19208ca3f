package entitlement

import "time"

// lifetimeStart anchors every lifetime window so its key never changes.
var lifetimeStart = time.Unix(0, 0).UTC()

// Window is the span of one tracking period. A zero EndsAt means the
// window never ends.
type Window struct {
	Period   Period    `json:"period"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at,omitzero"`
}

// CurrentWindow returns the tracking window containing now.
// Monthly and yearly windows follow UTC calendar boundaries.
func CurrentWindow(p Period, now time.Time) Window {
	now = now.UTC()
	switch p {
	case PeriodMonthly:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return Window{Period: p, StartsAt: start, EndsAt: start.AddDate(0, 1, 0)}
	case PeriodYearly:
		start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return Window{Period: p, StartsAt: start, EndsAt: start.AddDate(1, 0, 0)}
	default:
		return Window{Period: PeriodLifetime, StartsAt: lifetimeStart}
	}
}

// Contains reports whether t falls within [StartsAt, EndsAt).
func (w Window) Contains(t time.Time) bool {
	if t.Before(w.StartsAt) {
		return false
	}
	return w.EndsAt.IsZero() || t.Before(w.EndsAt)
}

// Unbounded reports whether the window never ends.
func (w Window) Unbounded() bool {
	return w.EndsAt.IsZero()
}

// EndsAtPtr returns EndsAt as a pointer, nil for unbounded windows.
// Convenient for nullable storage columns.
func (w Window) EndsAtPtr() *time.Time {
	if w.EndsAt.IsZero() {
		return nil
	}
	end := w.EndsAt
	return &end
}

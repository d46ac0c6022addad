// Package recurrence computes future occurrence instants for schedule
// recurrence rules. All arithmetic happens on wall-clock time in the
// schedule's own timezone, so a daily rule stays at the same local hour
// across DST transitions.
package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/damoang/angple-workflow/internal/common"
)

// Rule is a sealed variant: Daily, Weekly, Monthly or Every. Every place that
// computes occurrences type-switches over the concrete rules exhaustively.
type Rule interface {
	isRule()
}

// Daily fires every Interval days at the same time of day.
type Daily struct {
	Interval int
}

// Weekly fires on the next date, strictly after the previous occurrence,
// whose weekday is in Days. An empty Days set behaves as a plain
// 7*Interval-day increment. Interval > 1 skips that many weeks once the
// day-of-week walk wraps into a new week.
type Weekly struct {
	Interval int
	Days     []time.Weekday
}

// Monthly fires in the next calendar month (stepping Interval months) on the
// smallest configured day of month. A configured day past the month's length
// clamps to the last day of that month. An empty DaysOfMonth keeps the
// previous occurrence's day of month, clamped the same way.
type Monthly struct {
	Interval    int
	DaysOfMonth []int
}

// Every fires at a fixed step, the custom escape hatch for rules the calendar
// patterns cannot express.
type Every struct {
	Step time.Duration
}

func (Daily) isRule()   {}
func (Weekly) isRule()  {}
func (Monthly) isRule() {}
func (Every) isRule()   {}

// Validate rejects rules that cannot produce a strictly increasing sequence.
func Validate(r Rule) error {
	switch v := r.(type) {
	case Daily:
		if v.Interval < 0 {
			return fmt.Errorf("daily interval %d: %w", v.Interval, common.ErrValidation)
		}
	case Weekly:
		if v.Interval < 0 {
			return fmt.Errorf("weekly interval %d: %w", v.Interval, common.ErrValidation)
		}
		for _, d := range v.Days {
			if d < time.Sunday || d > time.Saturday {
				return fmt.Errorf("weekday %d: %w", d, common.ErrValidation)
			}
		}
	case Monthly:
		if v.Interval < 0 {
			return fmt.Errorf("monthly interval %d: %w", v.Interval, common.ErrValidation)
		}
		for _, d := range v.DaysOfMonth {
			if d < 1 || d > 31 {
				return fmt.Errorf("day of month %d: %w", d, common.ErrValidation)
			}
		}
	case Every:
		if v.Step <= 0 {
			return fmt.Errorf("custom step %s: %w", v.Step, common.ErrValidation)
		}
	default:
		return fmt.Errorf("unknown recurrence rule %T: %w", r, common.ErrValidation)
	}
	return nil
}

// Next returns the first occurrence strictly after prev, resolved in loc.
func Next(r Rule, prev time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	t := prev.In(loc)

	switch v := r.(type) {
	case Daily:
		return addDays(t, max(v.Interval, 1))

	case Weekly:
		interval := max(v.Interval, 1)
		if len(v.Days) == 0 {
			return addDays(t, 7*interval)
		}
		days := map[time.Weekday]bool{}
		for _, d := range v.Days {
			days[d] = true
		}
		for d := 1; d <= 7; d++ {
			cand := addDays(t, d)
			if !days[cand.Weekday()] {
				continue
			}
			if interval > 1 && weekStart(cand) != weekStart(t) {
				cand = addDays(cand, 7*(interval-1))
			}
			return cand
		}
		// Days validated non-empty with valid weekdays; unreachable.
		return addDays(t, 7*interval)

	case Monthly:
		interval := max(v.Interval, 1)
		year, month, _ := t.Date()
		target := time.Date(year, month+time.Month(interval), 1,
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
		day := t.Day()
		if len(v.DaysOfMonth) > 0 {
			sorted := append([]int(nil), v.DaysOfMonth...)
			sort.Ints(sorted)
			day = sorted[0]
		}
		if last := daysIn(target.Year(), target.Month()); day > last {
			day = last
		}
		return time.Date(target.Year(), target.Month(), day,
			t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)

	case Every:
		return t.Add(v.Step)
	}
	return t
}

// Occurrences generates the occurrence sequence beginning at start (start
// itself is the first occurrence). Generation stops at the rule's end
// boundary (until, inclusive) or after maxCount instants, whichever comes
// first; a non-positive maxCount falls back to a hard cap so rules without an
// end date cannot generate unboundedly. The result is a pure function of the
// arguments and safe to recompute.
func Occurrences(r Rule, start time.Time, loc *time.Location, until *time.Time, maxCount int) []time.Time {
	const hardCap = 1000
	if maxCount <= 0 || maxCount > hardCap {
		maxCount = hardCap
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []time.Time
	cur := start.In(loc)
	for len(out) < maxCount {
		if until != nil && cur.After(*until) {
			break
		}
		out = append(out, cur)
		next := Next(r, cur, loc)
		if !next.After(cur) {
			break
		}
		cur = next
	}
	return out
}

// addDays advances by whole calendar days preserving the wall clock, so the
// result survives DST offset changes.
func addDays(t time.Time, days int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+days,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// weekStart normalizes to the Monday date of t's week.
func weekStart(t time.Time) time.Time {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return time.Date(t.Year(), t.Month(), t.Day()-(wd-1), 0, 0, 0, 0, t.Location())
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Encoded is the flat column representation persisted on a schedule row.
type Encoded struct {
	Freq      string
	Interval  int
	Days      string
	MonthDays string
	EverySec  int64
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday,
	"wed": time.Wednesday, "thu": time.Thursday, "fri": time.Friday,
	"sat": time.Saturday,
}

var weekdayCodes = map[time.Weekday]string{
	time.Sunday: "sun", time.Monday: "mon", time.Tuesday: "tue",
	time.Wednesday: "wed", time.Thursday: "thu", time.Friday: "fri",
	time.Saturday: "sat",
}

// Encode flattens a rule for storage.
func Encode(r Rule) Encoded {
	switch v := r.(type) {
	case Daily:
		return Encoded{Freq: "daily", Interval: v.Interval}
	case Weekly:
		codes := make([]string, 0, len(v.Days))
		for _, d := range v.Days {
			codes = append(codes, weekdayCodes[d])
		}
		return Encoded{Freq: "weekly", Interval: v.Interval, Days: strings.Join(codes, ",")}
	case Monthly:
		nums := make([]string, 0, len(v.DaysOfMonth))
		for _, d := range v.DaysOfMonth {
			nums = append(nums, strconv.Itoa(d))
		}
		return Encoded{Freq: "monthly", Interval: v.Interval, MonthDays: strings.Join(nums, ",")}
	case Every:
		return Encoded{Freq: "every", EverySec: int64(v.Step / time.Second)}
	}
	return Encoded{}
}

// Decode rebuilds a rule from its flat columns. An empty freq returns nil
// (one-shot schedule, no rule).
func Decode(e Encoded) (Rule, error) {
	switch e.Freq {
	case "":
		return nil, nil
	case "daily":
		r := Daily{Interval: e.Interval}
		return r, Validate(r)
	case "weekly":
		var days []time.Weekday
		for _, code := range splitList(e.Days) {
			d, ok := weekdayNames[strings.ToLower(code)]
			if !ok {
				return nil, fmt.Errorf("weekday %q: %w", code, common.ErrValidation)
			}
			days = append(days, d)
		}
		r := Weekly{Interval: e.Interval, Days: days}
		return r, Validate(r)
	case "monthly":
		var nums []int
		for _, s := range splitList(e.MonthDays) {
			n, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("day of month %q: %w", s, common.ErrValidation)
			}
			nums = append(nums, n)
		}
		r := Monthly{Interval: e.Interval, DaysOfMonth: nums}
		return r, Validate(r)
	case "every":
		r := Every{Step: time.Duration(e.EverySec) * time.Second}
		return r, Validate(r)
	}
	return nil, fmt.Errorf("recurrence freq %q: %w", e.Freq, common.ErrValidation)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

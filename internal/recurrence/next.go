package recurrence

import "time"

// NextDue computes the next due time after anchor for spec, then moves it
// forward one calendar day at a time until it lands on an applicable day.
//
// For None it returns the zero time; the caller owns the due date.
// An empty days mask is a *ConfigError.
func NextDue(spec Spec, anchor time.Time, days Weekdays) (time.Time, error) {
	if days.IsEmpty() {
		return time.Time{}, &ConfigError{Field: "applicable_days", Message: "no applicable days selected"}
	}
	if err := spec.Validate(); err != nil {
		return time.Time{}, err
	}

	var next time.Time
	switch spec.Freq {
	case None:
		return time.Time{}, nil
	case Daily:
		next = anchor.AddDate(0, 0, 1)
	case Weekly:
		next = anchor.AddDate(0, 0, 7)
	case Monthly:
		next = addMonths(anchor, 1)
	case Custom:
		next = addUnits(anchor, spec.Interval, spec.Unit)
	case DailyMulti:
		next = nextSlot(spec.Times, anchor)
	}

	return applyDayFilter(spec, next, days), nil
}

// NextDueAfter repeats NextDue from anchor until the result is strictly after
// now. Used to catch a fixed-cadence schedule up past a backlog.
func NextDueAfter(spec Spec, anchor, now time.Time, days Weekdays) (time.Time, error) {
	// Safety limit to prevent infinite loops
	const maxIterations = 10000

	next := anchor
	for i := 0; i < maxIterations; i++ {
		var err error
		next, err = NextDue(spec, next, days)
		if err != nil || next.IsZero() {
			return next, err
		}
		if next.After(now) {
			return next, nil
		}
	}
	return next, nil
}

func applyDayFilter(spec Spec, t time.Time, days Weekdays) time.Time {
	for i := 0; i < 7 && !days.Has(t.Weekday()); i++ {
		if spec.Freq == DailyMulti {
			t = slotOn(startOfDay(t).AddDate(0, 0, 1), spec.Times[0])
			continue
		}
		t = t.AddDate(0, 0, 1)
	}
	return t
}

func addUnits(t time.Time, n int, unit Unit) time.Time {
	switch unit {
	case Hours:
		return t.Add(time.Duration(n) * time.Hour)
	case Days:
		return t.AddDate(0, 0, n)
	case Weeks:
		return t.AddDate(0, 0, 7*n)
	case Months:
		return addMonths(t, n)
	}
	return t
}

// addMonths clamps to the last day of the target month instead of
// overflowing into the next one (Jan 31 + 1 month = Feb 28).
func addMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	target := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysInMonth(target.Year(), target.Month()); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// nextSlot returns the first slot strictly after t, wrapping to the first
// slot of the following day.
func nextSlot(times []TimeOfDay, t time.Time) time.Time {
	day := startOfDay(t)
	for _, tod := range times {
		if candidate := slotOn(day, tod); candidate.After(t) {
			return candidate
		}
	}
	return slotOn(day.AddDate(0, 0, 1), times[0])
}

func slotOn(day time.Time, tod TimeOfDay) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), tod.Hour, tod.Minute, 0, 0, day.Location())
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekdays is a bit mask of applicable days, bit n set for time.Weekday(n).
type Weekdays uint8

const AllDays Weekdays = 1<<7 - 1

var dayNames = map[string]time.Weekday{
	"su": time.Sunday, "sun": time.Sunday, "sunday": time.Sunday,
	"mo": time.Monday, "mon": time.Monday, "monday": time.Monday,
	"tu": time.Tuesday, "tue": time.Tuesday, "tuesday": time.Tuesday,
	"we": time.Wednesday, "wed": time.Wednesday, "wednesday": time.Wednesday,
	"th": time.Thursday, "thu": time.Thursday, "thursday": time.Thursday,
	"fr": time.Friday, "fri": time.Friday, "friday": time.Friday,
	"sa": time.Saturday, "sat": time.Saturday, "saturday": time.Saturday,
}

var dayAbbrev = map[time.Weekday]string{
	time.Sunday:    "sun",
	time.Monday:    "mon",
	time.Tuesday:   "tue",
	time.Wednesday: "wed",
	time.Thursday:  "thu",
	time.Friday:    "fri",
	time.Saturday:  "sat",
}

// DaysOf builds a mask from the given weekdays.
func DaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// ParseWeekdays accepts names like "mon", "MO" or "Monday".
func ParseWeekdays(names []string) (Weekdays, error) {
	var w Weekdays
	for _, n := range names {
		d, ok := dayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown day: %q", n)
		}
		w |= DaysOf(d)
	}
	return w, nil
}

func (w Weekdays) Has(d time.Weekday) bool {
	return w&(1<<uint(d)) != 0
}

func (w Weekdays) IsEmpty() bool {
	return w&AllDays == 0
}

// Days lists the set days starting from Sunday.
func (w Weekdays) Days() []time.Weekday {
	var days []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if w.Has(d) {
			days = append(days, d)
		}
	}
	return days
}

func (w Weekdays) Names() []string {
	names := []string{}
	for _, d := range w.Days() {
		names = append(names, dayAbbrev[d])
	}
	return names
}

func (w Weekdays) String() string {
	if w&AllDays == AllDays {
		return "every day"
	}
	return strings.Join(w.Names(), ",")
}

func (w Weekdays) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Names())
}

func (w *Weekdays) UnmarshalJSON(b []byte) error {
	var names []string
	if err := json.Unmarshal(b, &names); err != nil {
		return fmt.Errorf("applicable days: %w", err)
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

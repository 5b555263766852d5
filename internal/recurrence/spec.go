package recurrence

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

type Freq int

const (
	None Freq = iota
	Daily
	Weekly
	Monthly
	Custom
	DailyMulti
)

var freqNames = map[Freq]string{
	Daily:      "DAILY",
	Weekly:     "WEEKLY",
	Monthly:    "MONTHLY",
	Custom:     "CUSTOM",
	DailyMulti: "DAILY_MULTI",
}

var freqFromName = map[string]Freq{
	"NONE":        None,
	"DAILY":       Daily,
	"WEEKLY":      Weekly,
	"MONTHLY":     Monthly,
	"CUSTOM":      Custom,
	"DAILY_MULTI": DailyMulti,
}

type Unit int

const (
	Hours Unit = iota + 1
	Days
	Weeks
	Months
)

var unitNames = map[Unit]string{
	Hours:  "HOURS",
	Days:   "DAYS",
	Weeks:  "WEEKS",
	Months: "MONTHS",
}

var unitFromName = map[string]Unit{
	"HOURS":  Hours,
	"DAYS":   Days,
	"WEEKS":  Weeks,
	"MONTHS": Months,
}

// Anchor selects what a Custom interval is added to.
type Anchor int

const (
	// PreviousDue keeps a fixed cadence regardless of when the chore was done.
	PreviousDue Anchor = iota
	// CompletionTime slides the schedule to the actual completion.
	CompletionTime
)

// TimeOfDay is a wall-clock slot used by DailyMulti.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}

// ParseTimeOfDay parses "HH:MM" in 24-hour form.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time of day: %q", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour: %q", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("invalid minute: %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// Spec is a chore's recurrence rule. The zero value is None.
type Spec struct {
	Freq     Freq
	Interval int         // Custom only
	Unit     Unit        // Custom only
	Anchor   Anchor      // Custom only
	Times    []TimeOfDay // DailyMulti only, ascending
}

// Parse parses a rule string like "FREQ=CUSTOM;INTERVAL=3;UNIT=DAYS;ANCHOR=COMPLETION"
// or "FREQ=DAILY_MULTI;TIMES=08:00,17:30". An empty string is None.
func Parse(rule string) (Spec, error) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return Spec{}, nil
	}

	var s Spec
	var hasFreq bool

	parts := strings.Split(rule, ";")
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return Spec{}, fmt.Errorf("invalid rule part: %q", part)
		}
		key, val := strings.ToUpper(strings.TrimSpace(kv[0])), strings.TrimSpace(kv[1])

		switch key {
		case "FREQ":
			f, ok := freqFromName[strings.ToUpper(val)]
			if !ok {
				return Spec{}, fmt.Errorf("unknown frequency: %q", val)
			}
			s.Freq = f
			hasFreq = true

		case "INTERVAL":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return Spec{}, fmt.Errorf("invalid interval: %q", val)
			}
			s.Interval = n

		case "UNIT":
			u, ok := unitFromName[strings.ToUpper(val)]
			if !ok {
				return Spec{}, fmt.Errorf("unknown unit: %q", val)
			}
			s.Unit = u

		case "ANCHOR":
			switch strings.ToUpper(val) {
			case "DUE", "PREVIOUS_DUE":
				s.Anchor = PreviousDue
			case "COMPLETION", "COMPLETION_TIME":
				s.Anchor = CompletionTime
			default:
				return Spec{}, fmt.Errorf("unknown anchor: %q", val)
			}

		case "TIMES":
			for _, raw := range strings.Split(val, ",") {
				tod, err := ParseTimeOfDay(raw)
				if err != nil {
					return Spec{}, err
				}
				s.Times = append(s.Times, tod)
			}
			slices.SortFunc(s.Times, func(a, b TimeOfDay) int { return a.minutes() - b.minutes() })
			s.Times = slices.Compact(s.Times)

		default:
			return Spec{}, fmt.Errorf("unsupported rule key: %q", key)
		}
	}

	if !hasFreq {
		return Spec{}, fmt.Errorf("FREQ is required")
	}
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Validate reports a *ConfigError if the rule cannot produce due dates.
func (s Spec) Validate() error {
	switch s.Freq {
	case None, Daily, Weekly, Monthly:
		return nil
	case Custom:
		if s.Interval < 1 {
			return &ConfigError{Field: "recurrence", Message: "custom interval must be at least 1"}
		}
		if _, ok := unitNames[s.Unit]; !ok {
			return &ConfigError{Field: "recurrence", Message: "custom recurrence needs a unit (hours, days, weeks, months)"}
		}
		return nil
	case DailyMulti:
		if len(s.Times) == 0 {
			return &ConfigError{Field: "recurrence", Message: "daily_multi needs at least one time slot"}
		}
		for i := 1; i < len(s.Times); i++ {
			if s.Times[i].minutes() <= s.Times[i-1].minutes() {
				return &ConfigError{Field: "recurrence", Message: "daily_multi time slots must be strictly ascending"}
			}
		}
		return nil
	}
	return &ConfigError{Field: "recurrence", Message: fmt.Sprintf("unknown frequency %d", s.Freq)}
}

func (s Spec) IsNone() bool {
	return s.Freq == None
}

// AnchorsOnCompletion reports whether the next due date slides with the
// actual completion time instead of the previous due date.
func (s Spec) AnchorsOnCompletion() bool {
	return s.Freq == Custom && s.Anchor == CompletionTime
}

// String serializes the rule back to its text form. None serializes to "".
func (s Spec) String() string {
	if s.Freq == None {
		return ""
	}
	var parts []string
	parts = append(parts, "FREQ="+freqNames[s.Freq])

	switch s.Freq {
	case Custom:
		parts = append(parts, fmt.Sprintf("INTERVAL=%d", s.Interval))
		parts = append(parts, "UNIT="+unitNames[s.Unit])
		if s.Anchor == CompletionTime {
			parts = append(parts, "ANCHOR=COMPLETION")
		}
	case DailyMulti:
		var times []string
		for _, t := range s.Times {
			times = append(times, t.String())
		}
		parts = append(parts, "TIMES="+strings.Join(times, ","))
	}

	return strings.Join(parts, ";")
}

func (s Spec) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Spec) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Describe returns a human-readable description of the rule.
func (s Spec) Describe() string {
	switch s.Freq {
	case None:
		return "Does not repeat"
	case Daily:
		return "Repeats daily"
	case Weekly:
		return "Repeats weekly"
	case Monthly:
		return "Repeats monthly"
	case Custom:
		unit := strings.ToLower(unitNames[s.Unit])
		if s.Interval == 1 {
			unit = strings.TrimSuffix(unit, "s")
		}
		desc := fmt.Sprintf("Repeats every %d %s", s.Interval, unit)
		if s.Interval == 1 {
			desc = "Repeats every " + unit
		}
		if s.Anchor == CompletionTime {
			desc += " after completion"
		}
		return desc
	case DailyMulti:
		var times []string
		for _, t := range s.Times {
			times = append(times, t.String())
		}
		return "Repeats daily at " + strings.Join(times, ", ")
	}
	return ""
}

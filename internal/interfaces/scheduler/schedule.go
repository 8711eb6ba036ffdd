package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Schedule yields the next fire time strictly after the given instant.
type Schedule interface {
	Next(after time.Time) time.Time
	String() string
}

// ScheduleTime represents a specific time of day when a job should run.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// String returns the time in HH:MM format.
func (st ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", st.Hour, st.Minute)
}

// ParseScheduleTime parses a time string in HH:MM format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	var hour, minute int
	_, err := fmt.Sscanf(s, "%d:%d", &hour, &minute)
	if err != nil {
		return ScheduleTime{}, fmt.Errorf("invalid time format (expected HH:MM): %w", err)
	}

	if hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour: %d (must be 0-23)", hour)
	}
	if minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute: %d (must be 0-59)", minute)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

// Interval fires every Every, the first time InitialDelay after the job starts.
type Interval struct {
	Every        time.Duration
	InitialDelay time.Duration

	started bool
}

func (i *Interval) Next(after time.Time) time.Time {
	if !i.started {
		i.started = true
		return after.Add(i.InitialDelay)
	}
	return after.Add(i.Every)
}

func (i *Interval) String() string {
	return "every " + i.Every.String()
}

// Daily fires at fixed times of day in Location.
type Daily struct {
	times    []ScheduleTime
	location *time.Location
}

// NewDaily parses HH:MM entries. A nil location means time.Local.
func NewDaily(times []string, location *time.Location) (*Daily, error) {
	if len(times) == 0 {
		return nil, errors.New("at least one schedule time is required")
	}
	if location == nil {
		location = time.Local
	}

	parsed := make([]ScheduleTime, 0, len(times))
	for _, s := range times {
		st, err := ParseScheduleTime(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule time %q: %w", s, err)
		}
		parsed = append(parsed, st)
	}
	sort.Slice(parsed, func(i, j int) bool {
		if parsed[i].Hour != parsed[j].Hour {
			return parsed[i].Hour < parsed[j].Hour
		}
		return parsed[i].Minute < parsed[j].Minute
	})

	return &Daily{times: parsed, location: location}, nil
}

func (d *Daily) Next(after time.Time) time.Time {
	local := after.In(d.location)
	for day := 0; day <= 1; day++ {
		base := local.AddDate(0, 0, day)
		for _, st := range d.times {
			candidate := time.Date(base.Year(), base.Month(), base.Day(), st.Hour, st.Minute, 0, 0, d.location)
			if candidate.After(after) {
				return candidate
			}
		}
	}
	// unreachable with at least one time configured
	return after.Add(24 * time.Hour)
}

func (d *Daily) String() string {
	s := "daily at"
	for _, st := range d.times {
		s += " " + st.String()
	}
	return s
}

// Times returns the configured times of day in order.
func (d *Daily) Times() []ScheduleTime {
	return d.times
}

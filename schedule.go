package latchlink

import (
	"fmt"
	"strconv"
	"time"
)

// Wire sentinels for the activation/expiration window. A window of
// [minTime, maxTime] means "no temporary schedule"; the recurring shape
// (or no schedule at all) applies instead.
const (
	minTime = 0
	maxTime = 0xFFFFFFFF

	minHour   = 0
	minMinute = 0
	maxHour   = 23
	maxMinute = 59

	allDaysMask = "7F"
)

// Schedule restricts when an access code is usable. Exactly one of the two
// concrete shapes is active at a time; a nil Schedule means the code is
// always usable.
type Schedule interface {
	isSchedule()
}

// DaysOfWeek selects the days on which a RecurringSchedule applies.
type DaysOfWeek struct {
	Sunday    bool
	Monday    bool
	Tuesday   bool
	Wednesday bool
	Thursday  bool
	Friday    bool
	Saturday  bool
}

// AllDays returns a DaysOfWeek with every day enabled.
func AllDays() DaysOfWeek {
	return DaysOfWeek{
		Sunday:    true,
		Monday:    true,
		Tuesday:   true,
		Wednesday: true,
		Thursday:  true,
		Friday:    true,
		Saturday:  true,
	}
}

// ParseDaysOfWeek decodes the wire representation: a hex string of a 7-bit
// mask with Sunday in the most significant bit.
func ParseDaysOfWeek(s string) (DaysOfWeek, error) {
	n, err := strconv.ParseUint(s, 16, 8)
	if err != nil || n > 0x7F {
		return DaysOfWeek{}, fmt.Errorf("%w: invalid day-of-week mask %q", ErrUnknown, s)
	}
	return DaysOfWeek{
		Sunday:    n&0x40 != 0,
		Monday:    n&0x20 != 0,
		Tuesday:   n&0x10 != 0,
		Wednesday: n&0x08 != 0,
		Thursday:  n&0x04 != 0,
		Friday:    n&0x02 != 0,
		Saturday:  n&0x01 != 0,
	}, nil
}

// HexString returns the wire representation of the mask.
func (d DaysOfWeek) HexString() string {
	n := 0
	for _, set := range []bool{d.Sunday, d.Monday, d.Tuesday, d.Wednesday, d.Thursday, d.Friday, d.Saturday} {
		n <<= 1
		if set {
			n |= 1
		}
	}
	return fmt.Sprintf("%X", n)
}

// RecurringSchedule enables an access code during a daily window on selected
// days. The zero-restriction schedule (all days, 00:00 to 23:59) is never
// materialized: it decodes to a nil Schedule.
type RecurringSchedule struct {
	Days        DaysOfWeek
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

func (RecurringSchedule) isSchedule() {}

// NewRecurringSchedule returns the widest recurring window. Narrow it by
// clearing days or tightening the hours before assigning it to a code.
func NewRecurringSchedule() RecurringSchedule {
	return RecurringSchedule{
		Days:      AllDays(),
		EndHour:   maxHour,
		EndMinute: maxMinute,
	}
}

// TemporarySchedule enables an access code between two absolute instants.
type TemporarySchedule struct {
	Start time.Time
	End   time.Time
}

func (TemporarySchedule) isSchedule() {}

type recurringScheduleJSON struct {
	DaysOfWeek  string `json:"daysOfWeek"`
	StartHour   int    `json:"startHour"`
	StartMinute int    `json:"startMinute"`
	EndHour     int    `json:"endHour"`
	EndMinute   int    `json:"endMinute"`
}

func defaultScheduleWire() recurringScheduleJSON {
	return recurringScheduleJSON{
		DaysOfWeek: allDaysMask,
		EndHour:    maxHour,
		EndMinute:  maxMinute,
	}
}

func (s RecurringSchedule) wire() recurringScheduleJSON {
	return recurringScheduleJSON{
		DaysOfWeek:  s.Days.HexString(),
		StartHour:   s.StartHour,
		StartMinute: s.StartMinute,
		EndHour:     s.EndHour,
		EndMinute:   s.EndMinute,
	}
}

// scheduleFromWire reconstructs the active schedule shape. The transport is
// not union aware: every payload carries both shapes, with the inactive one
// defaulted, so the activation window doubles as the discriminator.
func scheduleFromWire(activation, expiration int64, schedule1 *recurringScheduleJSON) (Schedule, error) {
	if activation != minTime || expiration != maxTime {
		return TemporarySchedule{
			Start: time.Unix(activation, 0).UTC(),
			End:   time.Unix(expiration, 0).UTC(),
		}, nil
	}
	if schedule1 == nil {
		return nil, nil
	}
	if schedule1.DaysOfWeek == allDaysMask &&
		schedule1.StartHour == minHour && schedule1.StartMinute == minMinute &&
		schedule1.EndHour == maxHour && schedule1.EndMinute == maxMinute {
		return nil, nil
	}
	days, err := ParseDaysOfWeek(schedule1.DaysOfWeek)
	if err != nil {
		return nil, err
	}
	return RecurringSchedule{
		Days:        days,
		StartHour:   schedule1.StartHour,
		StartMinute: schedule1.StartMinute,
		EndHour:     schedule1.EndHour,
		EndMinute:   schedule1.EndMinute,
	}, nil
}

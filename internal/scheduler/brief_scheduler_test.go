package scheduler

import (
	"testing"
	"time"

	"briefd/internal/model"
)

func mustUTC(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts.UTC()
}

func weekday(d time.Weekday) *time.Weekday { return &d }

func timePtr(ts time.Time) *time.Time { return &ts }

func TestIsDueDailyTimezone(t *testing.T) {
	brief := &model.Brief{
		Frequency:    model.FrequencyDaily,
		ScheduleTime: "11:30",
		Timezone:     "Europe/Paris",
	}

	// 10:00Z in July is 12:00 CEST, past the 11:30 local schedule.
	if !IsDue(brief, mustUTC(t, "2026-07-15T10:00:00Z")) {
		t.Fatal("expected brief due at 12:00 local")
	}

	// 07:00Z is 09:00 CEST, before the schedule.
	if IsDue(brief, mustUTC(t, "2026-07-15T07:00:00Z")) {
		t.Fatal("expected brief not due at 09:00 local")
	}
}

func TestIsDueWeeklyDayCrossesDateLine(t *testing.T) {
	brief := &model.Brief{
		Frequency:    model.FrequencyWeekly,
		ScheduleTime: "07:00",
		ScheduleDay:  weekday(time.Monday),
		Timezone:     "Asia/Tokyo",
	}

	// Sunday 23:00Z is already Monday 08:00 in Tokyo.
	if !IsDue(brief, mustUTC(t, "2026-07-12T23:00:00Z")) {
		t.Fatal("expected brief due on local Monday morning")
	}

	// Sunday 12:00Z is still Sunday 21:00 in Tokyo.
	if IsDue(brief, mustUTC(t, "2026-07-12T12:00:00Z")) {
		t.Fatal("expected brief not due on local Sunday")
	}
}

func TestIsDueWeeklyNilDayFiresAnyDay(t *testing.T) {
	brief := &model.Brief{
		Frequency:    model.FrequencyWeekly,
		ScheduleTime: "06:00",
		Timezone:     "UTC",
	}
	if !IsDue(brief, mustUTC(t, "2026-07-15T08:00:00Z")) {
		t.Fatal("expected weekly brief without a day to fire on any day")
	}
}

func TestIsDueDailySkipsSameLocalDay(t *testing.T) {
	brief := &model.Brief{
		Frequency:      model.FrequencyDaily,
		ScheduleTime:   "08:00",
		Timezone:       "UTC",
		LastExecutedAt: timePtr(mustUTC(t, "2026-07-15T08:03:00Z")),
	}

	if IsDue(brief, mustUTC(t, "2026-07-15T14:00:00Z")) {
		t.Fatal("expected brief not due again on the same local day")
	}
	if !IsDue(brief, mustUTC(t, "2026-07-16T08:30:00Z")) {
		t.Fatal("expected brief due the next local day")
	}
}

func TestIsDueWeeklySkipsWithinSixDays(t *testing.T) {
	// No day-of-week constraint, so only the six-day window holds it back.
	brief := &model.Brief{
		Frequency:      model.FrequencyWeekly,
		ScheduleTime:   "09:00",
		Timezone:       "UTC",
		LastExecutedAt: timePtr(mustUTC(t, "2026-07-15T09:01:00Z")),
	}

	if IsDue(brief, mustUTC(t, "2026-07-17T09:05:00Z")) {
		t.Fatal("expected brief not due two days after last execution")
	}
	if !IsDue(brief, mustUTC(t, "2026-07-22T09:05:00Z")) {
		t.Fatal("expected brief due a week later")
	}
}

func TestIsDueInvalidTimezoneFallsBackToUTC(t *testing.T) {
	brief := &model.Brief{
		Frequency:    model.FrequencyDaily,
		ScheduleTime: "10:00",
		Timezone:     "Mars/Olympus_Mons",
	}

	if !IsDue(brief, mustUTC(t, "2026-07-15T10:30:00Z")) {
		t.Fatal("expected UTC fallback to report due")
	}
	if IsDue(brief, mustUTC(t, "2026-07-15T09:30:00Z")) {
		t.Fatal("expected UTC fallback to report not due")
	}
}

func TestIsDueBadScheduleTimeActsLikeMidnight(t *testing.T) {
	brief := &model.Brief{
		Frequency:    model.FrequencyDaily,
		ScheduleTime: "noonish",
		Timezone:     "UTC",
	}
	if !IsDue(brief, mustUTC(t, "2026-07-15T00:05:00Z")) {
		t.Fatal("expected unparseable schedule time to behave like 00:00")
	}
}

func TestParseScheduleTime(t *testing.T) {
	cases := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"00:00", 0, false},
		{"07:05", 425, false},
		{"23:59", 1439, false},
		{"24:00", 0, true},
		{"12:60", 0, true},
		{"garbage", 0, true},
	}

	for _, tc := range cases {
		got, err := parseScheduleTime(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("parseScheduleTime(%q): expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseScheduleTime(%q): %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("parseScheduleTime(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

package meter_test

import (
	"testing"
	"time"

	"github.com/xraph/gate/meter"
)

func TestMonthStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"MidMonth",
			time.Date(2026, time.March, 15, 13, 45, 0, 0, time.UTC),
			time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"FirstInstant",
			time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			"NonUTCInput",
			time.Date(2026, time.March, 1, 3, 0, 0, 0, time.FixedZone("plus5", 5*3600)),
			// 03:00+05:00 is 22:00 UTC the previous day, so the UTC month is February.
			time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := meter.MonthStart(tt.in); !got.Equal(tt.want) {
				t.Errorf("MonthStart(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNextMonthStart(t *testing.T) {
	in := time.Date(2026, time.December, 31, 23, 59, 59, 999999999, time.UTC)
	want := time.Date(2027, time.January, 1, 0, 0, 0, 0, time.UTC)
	if got := meter.NextMonthStart(in); !got.Equal(want) {
		t.Errorf("NextMonthStart(%v) = %v, want %v", in, got, want)
	}
}

func TestMonthWindowBoundary(t *testing.T) {
	lastInstant := time.Date(2026, time.January, 31, 23, 59, 59, 999999999, time.UTC)
	firstOfNext := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC)

	january := meter.MonthWindow(lastInstant)
	if !january.Contains(lastInstant) {
		t.Error("last instant of January must count in January's window")
	}
	if january.Contains(firstOfNext) {
		t.Error("first instant of February must not count in January's window")
	}

	february := meter.MonthWindow(firstOfNext)
	if !february.Contains(firstOfNext) {
		t.Error("first instant of February must count in February's window")
	}
	if february.Contains(lastInstant) {
		t.Error("January record must not count in February's window")
	}
}

func TestHourWindowSlides(t *testing.T) {
	now := time.Date(2026, time.June, 10, 14, 30, 0, 0, time.UTC)
	w := meter.HourWindow(now)

	if !w.Contains(now.Add(-59 * time.Minute)) {
		t.Error("record 59 minutes ago is inside the sliding hour")
	}
	if w.Contains(now.Add(-61 * time.Minute)) {
		t.Error("record 61 minutes ago is outside the sliding hour")
	}
	// Sliding, not clock-hour bucketed: window start is not aligned to :00.
	if w.Start.Minute() != 30 {
		t.Errorf("window start minute = %d, want 30 (sliding window)", w.Start.Minute())
	}
}

package period

import (
	"testing"
	"time"
)

func TestResolve(t *testing.T) {
	cases := []struct {
		name  string
		today time.Time
		want  time.Time
	}{
		{"january sees prior year Q4", date(2026, 1, 15), date(2025, 12, 31)},
		{"april sees prior year Q4", date(2026, 4, 30), date(2025, 12, 31)},
		{"may sees Q1", date(2026, 5, 1), date(2026, 3, 31)},
		{"august sees Q1", date(2026, 8, 30), date(2026, 3, 31)},
		{"september sees Q2", date(2026, 9, 1), date(2026, 6, 30)},
		{"october sees Q2", date(2026, 10, 31), date(2026, 6, 30)},
		{"november sees Q3", date(2026, 11, 1), date(2026, 9, 30)},
		{"december sees Q3", date(2026, 12, 31), date(2026, 9, 30)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Resolve(tc.today)
			if !got.Equal(tc.want) {
				t.Fatalf("Resolve(%s) = %s, want %s", tc.today.Format("2006-01-02"), got, tc.want)
			}
		})
	}
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

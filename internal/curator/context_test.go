package curator

import (
	"testing"
	"time"
)

func TestSeason(t *testing.T) {
	tests := []struct {
		month time.Month
		want  string
	}{
		{time.January, "winter"},
		{time.March, "spring"},
		{time.May, "spring"},
		{time.June, "summer"},
		{time.August, "summer"},
		{time.September, "autumn"},
		{time.November, "autumn"},
		{time.December, "winter"},
	}
	for _, tc := range tests {
		now := time.Date(2026, tc.month, 15, 12, 0, 0, 0, time.UTC)
		if got := season(now); got != tc.want {
			t.Errorf("season(%s) = %q, want %q", tc.month, got, tc.want)
		}
	}
}

func TestTimeOfDay(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{4, "night"},
		{5, "morning"},
		{11, "morning"},
		{12, "afternoon"},
		{16, "afternoon"},
		{17, "evening"},
		{20, "evening"},
		{21, "night"},
		{0, "night"},
	}
	for _, tc := range tests {
		now := time.Date(2026, time.June, 15, tc.hour, 0, 0, 0, time.UTC)
		if got := timeOfDay(now); got != tc.want {
			t.Errorf("timeOfDay(%02d:00) = %q, want %q", tc.hour, got, tc.want)
		}
	}
}

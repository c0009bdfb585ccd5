package engine

import (
	"testing"
	"time"
)

func TestWeightTier_FourHourWindow(t *testing.T) {
	const window = 4 * time.Hour

	cases := []struct {
		name    string
		elapsed time.Duration
		want    uint64
	}{
		{"start", 0, 100},
		{"just inside first quarter", 3599 * time.Second, 100},
		{"first quarter boundary", 3600 * time.Second, 70},
		{"second quarter", 5000 * time.Second, 70},
		{"second quarter boundary", 7200 * time.Second, 50},
		{"third quarter", 9000 * time.Second, 50},
		{"third quarter boundary", 10800 * time.Second, 20},
		{"final quarter", 14000 * time.Second, 20},
		{"past window end", 15000 * time.Second, 20},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := WeightTier(tc.elapsed, window); got != tc.want {
				t.Errorf("WeightTier(%v) = %d, want %d", tc.elapsed, got, tc.want)
			}
		})
	}
}

func TestWeightTier_ScalesWithWindow(t *testing.T) {
	// Tier boundaries are quarters of the window, not fixed seconds.
	if got := WeightTier(20*time.Minute, time.Hour); got != 70 {
		t.Errorf("20m of 1h window: got %d, want 70", got)
	}
	if got := WeightTier(20*time.Minute, 4*time.Hour); got != 100 {
		t.Errorf("20m of 4h window: got %d, want 100", got)
	}
}

func TestEffectiveStake_TruncatesDown(t *testing.T) {
	cases := []struct {
		amount, weight, want uint64
	}{
		{1000, 100, 1000},
		{1000, 70, 700},
		{1000, 50, 500},
		{1000, 20, 200},
		{999, 50, 499}, // floor, never rounds up
		{1, 20, 0},
		{0, 100, 0},
	}
	for _, tc := range cases {
		if got := EffectiveStake(tc.amount, tc.weight); got != tc.want {
			t.Errorf("EffectiveStake(%d, %d) = %d, want %d", tc.amount, tc.weight, got, tc.want)
		}
	}
}

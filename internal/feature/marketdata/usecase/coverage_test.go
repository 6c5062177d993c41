package usecase

import (
	"testing"
	"time"
)

func TestIsCovered(t *testing.T) {
	t.Parallel()

	day := func(d int) time.Time {
		return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
	}

	tests := []struct {
		name        string
		cachedStart time.Time
		cachedEnd   time.Time
		reqStart    time.Time
		reqEnd      time.Time
		tolerance   int
		want        bool
	}{
		{
			name:        "exact match",
			cachedStart: day(0), cachedEnd: day(100),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      true,
		},
		{
			name:        "cache starts within tolerance after request",
			cachedStart: day(3), cachedEnd: day(100),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      true,
		},
		{
			name:        "cache starts too late",
			cachedStart: day(6), cachedEnd: day(100),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      false,
		},
		{
			name:        "cache ends within tolerance before request",
			cachedStart: day(0), cachedEnd: day(96),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      true,
		},
		{
			name:        "cache ends too early",
			cachedStart: day(0), cachedEnd: day(94),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      false,
		},
		{
			name:        "boundary: gap of exactly tolerance days",
			cachedStart: day(5), cachedEnd: day(95),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      true,
		},
		{
			name:        "cache extends far beyond requested range on both sides",
			cachedStart: day(-30), cachedEnd: day(130),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      false,
		},
		{
			name:        "zero cached range never covers",
			cachedStart: time.Time{}, cachedEnd: time.Time{},
			reqStart: day(0), reqEnd: day(100),
			tolerance: 5,
			want:      false,
		},
		{
			name:        "zero tolerance requires exact bounds",
			cachedStart: day(1), cachedEnd: day(100),
			reqStart: day(0), reqEnd: day(100),
			tolerance: 0,
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := isCovered(tt.cachedStart, tt.cachedEnd, tt.reqStart, tt.reqEnd, tt.tolerance)
			if got != tt.want {
				t.Errorf("isCovered() = %v, want %v", got, tt.want)
			}
		})
	}
}

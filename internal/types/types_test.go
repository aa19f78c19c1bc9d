package types

import (
	"testing"
	"time"
)

func TestTimeframeDuration(t *testing.T) {
	cases := []struct {
		tf   string
		want time.Duration
	}{
		{"1m", time.Minute},
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"4h", 4 * time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
	}
	for _, tc := range cases {
		got, err := TimeframeDuration(tc.tf)
		if err != nil {
			t.Errorf("%s: %v", tc.tf, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.tf, got, tc.want)
		}
	}

	for _, bad := range []string{"", "m", "0m", "-5m", "10x", "1M"} {
		if _, err := TimeframeDuration(bad); err == nil {
			t.Errorf("%q: expected an error", bad)
		}
	}
}

func TestSpotDetection(t *testing.T) {
	if !(Execution{Symbol: "BTC/USDT"}).Spot() {
		t.Error("BTC/USDT must be spot")
	}
	if (Execution{Symbol: "BTC/USDT:USDT"}).Spot() {
		t.Error("BTC/USDT:USDT must be a derivative")
	}
}

package factcache

import (
	"testing"
	"time"
)

func TestFundingIntervalTTL(t *testing.T) {
	c := NewWithTTL(time.Hour)
	base := time.Now()
	c.now = func() time.Time { return base }

	if _, ok := c.FundingInterval("BTCUSDT"); ok {
		t.Fatal("empty cache reported a hit")
	}

	c.SetFundingInterval("btcusdt", 8)
	hours, ok := c.FundingInterval("BTCUSDT")
	if !ok || hours != 8 {
		t.Fatalf("FundingInterval = %d, %v; want 8, true", hours, ok)
	}

	// Expired entries behave like misses.
	base = base.Add(2 * time.Hour)
	if _, ok := c.FundingInterval("BTCUSDT"); ok {
		t.Fatal("expired entry reported a hit")
	}
}

func TestHasSpotPinnedTrue(t *testing.T) {
	c := New()

	if got := c.HasSpot("ETHUSDT"); got != Unknown {
		t.Fatalf("HasSpot on empty cache = %v, want Unknown", got)
	}

	c.SetHasSpot("ETHUSDT", false)
	if got := c.HasSpot("ethusdt"); got != No {
		t.Fatalf("HasSpot = %v, want No", got)
	}

	// A later false observation may flip to true...
	c.SetHasSpot("ETHUSDT", true)
	if got := c.HasSpot("ETHUSDT"); got != Yes {
		t.Fatalf("HasSpot = %v, want Yes", got)
	}

	// ...but once true it stays pinned.
	c.SetHasSpot("ETHUSDT", false)
	if got := c.HasSpot("ETHUSDT"); got != Yes {
		t.Fatalf("pinned Yes was downgraded to %v", got)
	}
}

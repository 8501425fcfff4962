package ratelimit

import (
	"testing"
	"time"
)

func TestAcquireRequest_TokenBucket(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 2})
	now := time.Now()

	d1 := l.AcquireRequest("c1", now)
	d2 := l.AcquireRequest("c1", now)
	if !d1.Allowed || !d2.Allowed {
		t.Fatalf("burst requests denied: %v %v", d1.Allowed, d2.Allowed)
	}
	d1.Permit.Release()
	d2.Permit.Release()

	d3 := l.AcquireRequest("c1", now)
	if d3.Allowed {
		t.Fatal("third request within burst window allowed")
	}
	if d3.RetryAfter < 1 {
		t.Fatalf("RetryAfter = %d, want >= 1", d3.RetryAfter)
	}

	// Tokens refill with time.
	d4 := l.AcquireRequest("c1", now.Add(1500*time.Millisecond))
	if !d4.Allowed {
		t.Fatal("request after refill denied")
	}
	d4.Permit.Release()
}

func TestAcquireRequest_CallersIndependent(t *testing.T) {
	l := New(Config{RPS: 1, Burst: 1})
	now := time.Now()

	if d := l.AcquireRequest("c1", now); !d.Allowed {
		t.Fatal("c1 denied")
	}
	if d := l.AcquireRequest("c2", now); !d.Allowed {
		t.Fatal("c2 denied; callers must not share buckets")
	}
	if d := l.AcquireRequest("c1", now); d.Allowed {
		t.Fatal("c1 second request allowed")
	}
}

func TestAcquireRequest_ConcurrencyCap(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()

	d1 := l.AcquireRequest("c1", now)
	if !d1.Allowed {
		t.Fatal("first request denied")
	}
	if d := l.AcquireRequest("c1", now); d.Allowed {
		t.Fatal("second concurrent request allowed")
	}

	d1.Permit.Release()
	if d := l.AcquireRequest("c1", now); !d.Allowed {
		t.Fatal("request after release denied")
	}
}

func TestAcquireFeed_Cap(t *testing.T) {
	l := New(Config{MaxConcurrentFeeds: 2})
	now := time.Now()

	d1 := l.AcquireFeed("c1", now)
	d2 := l.AcquireFeed("c1", now)
	if !d1.Allowed || !d2.Allowed {
		t.Fatal("feeds under the cap denied")
	}
	if d := l.AcquireFeed("c1", now); d.Allowed {
		t.Fatal("feed over the cap allowed")
	}
	d1.Permit.Release()
	if d := l.AcquireFeed("c1", now); !d.Allowed {
		t.Fatal("feed after release denied")
	}
	d2.Permit.Release()
}

func TestPermitReleaseIdempotent(t *testing.T) {
	l := New(Config{MaxConcurrentRequests: 1})
	now := time.Now()

	d := l.AcquireRequest("c1", now)
	d.Permit.Release()
	d.Permit.Release() // double release must not free a second slot

	d2 := l.AcquireRequest("c1", now)
	if !d2.Allowed {
		t.Fatal("request after release denied")
	}
	if d3 := l.AcquireRequest("c1", now); d3.Allowed {
		t.Fatal("double release freed an extra slot")
	}
}

func TestCallerKeyFromToken(t *testing.T) {
	k1 := CallerKeyFromToken("secret-token")
	k2 := CallerKeyFromToken("secret-token")
	if k1 != k2 {
		t.Fatal("key derivation is not stable")
	}
	if k1 == CallerKeyFromToken("other-token") {
		t.Fatal("distinct tokens share a key")
	}
	if len(k1) != 2+32 {
		t.Fatalf("key length = %d", len(k1))
	}
}

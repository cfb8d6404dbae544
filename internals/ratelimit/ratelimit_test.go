package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_AdmitsWithinBurst(t *testing.T) {
	l := New(10, 5)
	now := time.Now()

	admitted := 0
	for i := 0; i < 20; i++ {
		if allowed, _ := l.Check(now); allowed {
			admitted++
		}
	}

	if admitted != 5 {
		t.Errorf("expected 5 admitted within burst, got %d", admitted)
	}
}

func TestLimiter_DenialCarriesRetryAfter(t *testing.T) {
	l := New(10, 1)
	now := time.Now()

	if allowed, _ := l.Check(now); !allowed {
		t.Fatal("first request should be admitted")
	}

	allowed, retryAfter := l.Check(now)
	if allowed {
		t.Fatal("second immediate request should be denied")
	}
	if retryAfter <= 0 {
		t.Errorf("expected positive retry_after, got %v", retryAfter)
	}
}

func TestLimiter_RefillOverTime(t *testing.T) {
	l := New(10, 1)
	now := time.Now()

	if allowed, _ := l.Check(now); !allowed {
		t.Fatal("first request should be admitted")
	}
	if allowed, _ := l.Check(now); allowed {
		t.Fatal("immediate second request should be denied")
	}

	later := now.Add(200 * time.Millisecond) // 10 req/s => 1 token per 100ms
	if allowed, _ := l.Check(later); !allowed {
		t.Error("expected a refilled token after 200ms at 10 req/s")
	}
}

func TestLimiter_Defaults(t *testing.T) {
	l := New(0, 0)
	now := time.Now()

	admitted := 0
	for i := 0; i < DefaultBurst+10; i++ {
		if allowed, _ := l.Check(now); allowed {
			admitted++
		}
	}
	if admitted != DefaultBurst {
		t.Errorf("expected %d admitted with default burst, got %d", DefaultBurst, admitted)
	}
}

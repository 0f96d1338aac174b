package breaker_test

import (
	"testing"
	"time"

	"github.com/yanmxa/gencode/internal/breaker"
)

func TestBreaker_TripsAfterThreshold(t *testing.T) {
	b := breaker.New(breaker.Config{
		FailureThreshold: 2,
		ResetTimeout:     50 * time.Millisecond,
		BackoffFactor:    2.0,
		MaxBackoff:       time.Second,
	})

	if !b.Allow("Bash") {
		t.Fatal("expected first call allowed")
	}
	b.RecordResult("Bash", false)
	if !b.Allow("Bash") {
		t.Fatal("expected second call allowed, breaker not yet tripped")
	}
	b.RecordResult("Bash", false)

	if b.Allow("Bash") {
		t.Fatal("expected breaker open after threshold failures")
	}
	if b.StateOf("Bash") != breaker.Open {
		t.Errorf("expected Open, got %v", b.StateOf("Bash"))
	}
}

func TestBreaker_HalfOpenProbeRecovers(t *testing.T) {
	b := breaker.New(breaker.Config{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		BackoffFactor:    2.0,
		MaxBackoff:       time.Second,
	})

	b.Allow("MCPTool")
	b.RecordResult("MCPTool", false)
	if b.StateOf("MCPTool") != breaker.Open {
		t.Fatal("expected Open after single failure at threshold 1")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow("MCPTool") {
		t.Fatal("expected probe call allowed after reset timeout")
	}
	if b.StateOf("MCPTool") != breaker.HalfOpen {
		t.Errorf("expected HalfOpen during probe, got %v", b.StateOf("MCPTool"))
	}

	b.RecordResult("MCPTool", true)
	if b.StateOf("MCPTool") != breaker.Closed {
		t.Errorf("expected Closed after successful probe, got %v", b.StateOf("MCPTool"))
	}
}

func TestBreaker_HalfOpenProbeFailureBacksOffFurther(t *testing.T) {
	b := breaker.New(breaker.Config{
		FailureThreshold: 1,
		ResetTimeout:     10 * time.Millisecond,
		BackoffFactor:    3.0,
		MaxBackoff:       time.Second,
	})

	b.Allow("Flaky")
	b.RecordResult("Flaky", false)

	time.Sleep(20 * time.Millisecond)
	b.Allow("Flaky") // probe
	b.RecordResult("Flaky", false)

	if b.StateOf("Flaky") != breaker.Open {
		t.Errorf("expected Open after failed probe, got %v", b.StateOf("Flaky"))
	}
	// Immediately after the failed probe the backoff should have grown, so
	// a call right away is still rejected.
	if b.Allow("Flaky") {
		t.Fatal("expected call rejected immediately after failed probe backoff")
	}
}

func TestBreaker_ClosedToolsAlwaysAllowed(t *testing.T) {
	b := breaker.New(breaker.DefaultConfig())
	if !b.Allow("NeverCalled") {
		t.Error("expected unknown tool to default to allowed/closed")
	}
}

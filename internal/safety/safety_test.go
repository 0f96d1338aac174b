package safety_test

import (
	"errors"
	"testing"

	"github.com/yanmxa/gencode/internal/safety"
)

func TestValidator_TurnCap(t *testing.T) {
	v := safety.New(safety.Limits{MaxToolLoops: 2})
	v.StartTurn()

	if _, err := v.ValidateCall("Read"); err != nil {
		t.Fatalf("call 1 should be allowed: %v", err)
	}
	if _, err := v.ValidateCall("Read"); err != nil {
		t.Fatalf("call 2 should be allowed: %v", err)
	}
	outcome, err := v.ValidateCall("Read")
	if err == nil {
		t.Fatal("expected 3rd call in one turn to be blocked")
	}
	if outcome != safety.TurnCapExceeded {
		t.Errorf("expected TurnCapExceeded, got %v", outcome)
	}
	var sErr *safety.Error
	if !errors.As(err, &sErr) {
		t.Errorf("expected *safety.Error, got %T", err)
	}
}

func TestValidator_TurnCapResetsOnNewTurn(t *testing.T) {
	v := safety.New(safety.Limits{MaxToolLoops: 1})
	v.StartTurn()
	v.ValidateCall("Read")
	if _, err := v.ValidateCall("Read"); err == nil {
		t.Fatal("expected cap exceeded within same turn")
	}

	v.StartTurn()
	if _, err := v.ValidateCall("Read"); err != nil {
		t.Fatalf("expected new turn to reset cap: %v", err)
	}
}

func TestValidator_SessionCapIsThreeTimesTurnCap(t *testing.T) {
	v := safety.New(safety.Limits{MaxToolLoops: 2})
	for turn := 0; turn < 3; turn++ {
		v.StartTurn()
		for i := 0; i < 2; i++ {
			if _, err := v.ValidateCall("Read"); err != nil {
				t.Fatalf("turn %d call %d unexpectedly blocked: %v", turn, i, err)
			}
		}
	}
	// Session total is now 6 == 2*3, the next turn should hit the session cap.
	v.StartTurn()
	outcome, err := v.ValidateCall("Read")
	if err == nil {
		t.Fatal("expected session cap exceeded")
	}
	if outcome != safety.SessionCapExceeded {
		t.Errorf("expected SessionCapExceeded, got %v", outcome)
	}
}

func TestValidator_RateLimited(t *testing.T) {
	v := safety.New(safety.Limits{MaxToolLoops: 100, PerSecond: 1})
	v.StartTurn()
	if _, err := v.ValidateCall("Bash"); err != nil {
		t.Fatalf("first call should be allowed: %v", err)
	}
	outcome, err := v.ValidateCall("Bash")
	if err == nil {
		t.Fatal("expected second immediate call to be rate limited")
	}
	if outcome != safety.RateLimited {
		t.Errorf("expected RateLimited, got %v", outcome)
	}
}

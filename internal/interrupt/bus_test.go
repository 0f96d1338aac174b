package interrupt_test

import (
	"testing"
	"time"

	"github.com/yanmxa/gencode/internal/interrupt"
)

func TestBus_RaiseCancel_WakesWaiter(t *testing.T) {
	bus := interrupt.New()
	done := bus.Done()

	woke := make(chan struct{})
	go func() {
		<-done
		close(woke)
	}()

	bus.RaiseCancel()

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}

	if !bus.IsCancelRequested() {
		t.Error("expected cancel requested")
	}
	if bus.IsExitRequested() {
		t.Error("expected exit not requested")
	}
	if bus.Level() != interrupt.LevelCancel {
		t.Errorf("expected LevelCancel, got %v", bus.Level())
	}
}

func TestBus_ClearCancel(t *testing.T) {
	bus := interrupt.New()
	bus.RaiseCancel()
	bus.ClearCancel()
	if bus.IsCancelRequested() {
		t.Error("expected cancel cleared")
	}
}

func TestBus_ExitOutranksCancel(t *testing.T) {
	bus := interrupt.New()
	bus.RaiseCancel()
	bus.RaiseExit()
	bus.ClearCancel()

	if bus.Level() != interrupt.LevelExit {
		t.Errorf("expected LevelExit to survive ClearCancel, got %v", bus.Level())
	}
}

func TestBus_WakeOnlyFiresOnce(t *testing.T) {
	bus := interrupt.New()
	first := bus.Done()

	select {
	case <-first:
		t.Fatal("channel should not be closed yet")
	default:
	}

	bus.RaiseCancel()

	select {
	case <-first:
	default:
		t.Fatal("channel should be closed after raise")
	}

	second := bus.Done()
	select {
	case <-second:
		t.Fatal("new wake channel should not be pre-closed")
	default:
	}
}

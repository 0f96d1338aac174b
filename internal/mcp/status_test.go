package mcp

import "testing"

func TestRegistry_StatusDisabled(t *testing.T) {
	r := NewRegistryForTest(map[string]ServerConfig{"srv": {Name: "srv"}})
	r.SetDisabled("srv", true)

	if got := r.Status("srv"); got != StatusDisabled {
		t.Errorf("expected StatusDisabled, got %v", got)
	}
}

func TestRegistry_StatusInitializing(t *testing.T) {
	r := NewRegistryForTest(map[string]ServerConfig{"srv": {Name: "srv"}})
	r.SetConnecting("srv", true)

	if got := r.Status("srv"); got != StatusInitializing {
		t.Errorf("expected StatusInitializing, got %v", got)
	}
}

func TestRegistry_StatusError(t *testing.T) {
	r := NewRegistryForTest(map[string]ServerConfig{"srv": {Name: "srv"}})
	r.SetConnectError("srv", "boom")

	if got := r.Status("srv"); got != StatusFailed {
		t.Errorf("expected StatusFailed, got %v", got)
	}
}

func TestRegistry_ShutdownIsIdempotent(t *testing.T) {
	r := NewRegistryForTest(map[string]ServerConfig{})
	r.Shutdown()
	r.Shutdown() // must not panic on a second call
}

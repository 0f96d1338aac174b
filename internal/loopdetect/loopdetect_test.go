package loopdetect_test

import (
	"testing"

	"github.com/yanmxa/gencode/internal/loopdetect"
)

func TestSignature_NormalizesRootPaths(t *testing.T) {
	a := loopdetect.Signature("Read", map[string]any{"path": ""})
	b := loopdetect.Signature("Read", map[string]any{"path": "."})
	c := loopdetect.Signature("Read", map[string]any{"path": "./"})
	if a != b || b != c {
		t.Errorf("expected root-path variants to match: %q %q %q", a, b, c)
	}
}

func TestSignature_IgnoresPagination(t *testing.T) {
	a := loopdetect.Signature("Grep", map[string]any{"pattern": "x", "page": float64(1)})
	b := loopdetect.Signature("Grep", map[string]any{"pattern": "x", "page": float64(2)})
	if a != b {
		t.Errorf("expected page to be ignored in signature, got %q vs %q", a, b)
	}
}

func TestSignature_KeyOrderIndependent(t *testing.T) {
	a := loopdetect.Signature("Bash", map[string]any{"command": "ls", "cwd": "/tmp"})
	b := loopdetect.Signature("Bash", map[string]any{"cwd": "/tmp", "command": "ls"})
	if a != b {
		t.Errorf("expected key order independence, got %q vs %q", a, b)
	}
}

func TestDetector_FlagsOnThirdRepeat(t *testing.T) {
	d := loopdetect.New(2)
	sig := loopdetect.Signature("Read", map[string]any{"path": "a.go"})

	for i := 1; i <= 2; i++ {
		if isLoop, _ := d.RecordToolCall(sig); isLoop {
			t.Fatalf("call %d should not yet be flagged", i)
		}
	}
	isLoop, count := d.RecordToolCall(sig)
	if !isLoop {
		t.Fatal("expected 3rd call to be flagged as a loop")
	}
	if count != 3 {
		t.Errorf("expected repeat count 3, got %d", count)
	}
}

func TestDetector_ResetSignature(t *testing.T) {
	d := loopdetect.New(2)
	sig := loopdetect.Signature("Read", map[string]any{"path": "a.go"})
	d.RecordToolCall(sig)
	d.RecordToolCall(sig)
	d.RecordToolCall(sig)
	d.ResetSignature(sig)
	if isLoop, count := d.RecordToolCall(sig); isLoop || count != 1 {
		t.Errorf("expected reset to clear count, got loop=%v count=%d", isLoop, count)
	}
}

func TestDetector_DisableSignature(t *testing.T) {
	d := loopdetect.New(2)
	sig := loopdetect.Signature("Read", map[string]any{"path": "a.go"})
	d.DisableSignature(sig)
	for i := 0; i < 5; i++ {
		if isLoop, _ := d.RecordToolCall(sig); isLoop {
			t.Fatal("disabled signature should never be flagged")
		}
	}
}

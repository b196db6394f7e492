package pools

import (
	"runtime/debug"
	"testing"
)

func TestApplyGCConfig(t *testing.T) {
	orig := debug.SetGCPercent(100)
	defer debug.SetGCPercent(orig)

	prev := ApplyGCConfig(GCConfig{GOGC: 250})
	if prev != 100 {
		t.Errorf("previous GOGC = %d, want 100", prev)
	}
	if got := debug.SetGCPercent(100); got != 250 {
		t.Errorf("GOGC = %d, want 250", got)
	}

	if prev := ApplyGCConfig(GCConfig{}); prev != -1 {
		t.Errorf("zero config must not touch GOGC, got prev %d", prev)
	}
}

func TestApplyGCConfig_MemoryLimit(t *testing.T) {
	orig := debug.SetMemoryLimit(-1)
	defer debug.SetMemoryLimit(orig)

	ApplyGCConfig(GCConfig{MemoryLimit: 256 << 20})
	if got := debug.SetMemoryLimit(-1); got != 256<<20 {
		t.Errorf("memory limit = %d, want %d", got, 256<<20)
	}

	ApplyGCConfig(GCConfig{})
	if got := debug.SetMemoryLimit(-1); got != 256<<20 {
		t.Errorf("zero config changed the memory limit to %d", got)
	}
}

func TestGetGCStats(t *testing.T) {
	stats := GetGCStats()
	if stats.NumGoroutine <= 0 {
		t.Errorf("NumGoroutine = %d", stats.NumGoroutine)
	}
	if stats.Sys == 0 {
		t.Error("Sys must be non-zero")
	}
}

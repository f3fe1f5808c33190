package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.EscalationThreshold != 5 {
		t.Errorf("escalation threshold = %d, want 5", cfg.EscalationThreshold)
	}
	if cfg.ProactiveExpiryWindow != time.Hour {
		t.Errorf("proactive window = %s, want 1h", cfg.ProactiveExpiryWindow)
	}
	if cfg.SweepCooldown != 5*time.Minute {
		t.Errorf("sweep cooldown = %s, want 5m", cfg.SweepCooldown)
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	data := "escalation_threshold: 3\nsweep_cooldown: 2m\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("SENTINEL_ESCALATION_THRESHOLD", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SweepCooldown != 2*time.Minute {
		t.Errorf("sweep cooldown = %s, want 2m from file", cfg.SweepCooldown)
	}
	if cfg.EscalationThreshold != 7 {
		t.Errorf("escalation threshold = %d, want env override 7", cfg.EscalationThreshold)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	if err := os.WriteFile(path, []byte("sweep_cooldown: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("unparseable duration accepted")
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.EscalationThreshold != 5 {
		t.Errorf("escalation threshold = %d, want default 5", cfg.EscalationThreshold)
	}
}

func TestExtensionBlocked(t *testing.T) {
	cfg := Default()
	tests := []struct {
		file    string
		blocked bool
	}{
		{"report.pdf", false},
		{"malware.exe", true},
		{"MALWARE.EXE", true},
		{"script.sh", true},
		{"noext", false},
		{"trailing.", false},
	}
	for _, tt := range tests {
		if got := cfg.ExtensionBlocked(tt.file); got != tt.blocked {
			t.Errorf("ExtensionBlocked(%q) = %v, want %v", tt.file, got, tt.blocked)
		}
	}
}

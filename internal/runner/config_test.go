package runner

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseConfig_Valid(t *testing.T) {
	yaml := `
include:
  - CalcSuite
  - "*.TestAdd"
exclude:
  - SlowSuite
repeat: 3
timeout: 1m30s
workers: 4
history: runs.db
no_color: true
`
	cfg, err := ParseConfig([]byte(yaml), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Include) != 2 {
		t.Errorf("include = %v, want 2 patterns", cfg.Include)
	}
	if cfg.Repeat != 3 {
		t.Errorf("repeat = %d, want 3", cfg.Repeat)
	}
	if cfg.Timeout.Std() != 90*time.Second {
		t.Errorf("timeout = %s, want 1m30s", cfg.Timeout.Std())
	}
	if cfg.Workers != 4 {
		t.Errorf("workers = %d, want 4", cfg.Workers)
	}
	if cfg.History != "runs.db" {
		t.Errorf("history = %q, want runs.db", cfg.History)
	}
	if !cfg.NoColor {
		t.Error("no_color not parsed")
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("{}"), "test.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Repeat != 1 {
		t.Errorf("repeat default = %d, want 1", cfg.Repeat)
	}
	if cfg.Workers != 1 {
		t.Errorf("workers default = %d, want 1", cfg.Workers)
	}
	if cfg.Timeout.Std() != 0 {
		t.Errorf("timeout default = %s, want 0", cfg.Timeout.Std())
	}
}

func TestParseConfig_InvalidDuration(t *testing.T) {
	if _, err := ParseConfig([]byte("timeout: soon"), "test.yaml"); err == nil {
		t.Fatal("expected an error for a malformed duration")
	}
}

func TestParseConfig_NegativeRepeat(t *testing.T) {
	if _, err := ParseConfig([]byte("repeat: -2"), "test.yaml"); err == nil {
		t.Fatal("expected an error for a negative repeat")
	}
}

func TestParseConfig_BadPattern(t *testing.T) {
	if _, err := ParseConfig([]byte("include: ['[']"), "test.yaml"); err == nil {
		t.Fatal("expected an error for a malformed glob")
	}
}

func TestConfig_Selected(t *testing.T) {
	cfg := &Config{
		Include: []string{"CalcSuite", "*.TestAdd"},
		Exclude: []string{"CalcSuite.TestSlow"},
	}

	cases := []struct {
		suite, name string
		want        bool
	}{
		{"CalcSuite", "TestAdd", true},
		{"CalcSuite", "TestSub", true},   // whole suite included by name
		{"CalcSuite", "TestSlow", false}, // excluded explicitly
		{"OtherSuite", "TestAdd", true},  // matched by glob
		{"OtherSuite", "TestSub", false}, // not included
	}
	for _, tc := range cases {
		if got := cfg.Selected(tc.suite, tc.name); got != tc.want {
			t.Errorf("Selected(%s, %s) = %v, want %v", tc.suite, tc.name, got, tc.want)
		}
	}

	open := &Config{}
	if !open.Selected("Anything", "TestAnything") {
		t.Error("empty config must select everything")
	}
}

func TestFindConfig_WalksUp(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	cfgPath := filepath.Join(root, "testrig.yaml")
	if err := os.WriteFile(cfgPath, []byte("repeat: 2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	found, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != cfgPath {
		t.Errorf("FindConfig = %q, want %q", found, cfgPath)
	}
}

func TestFindConfig_NotFound(t *testing.T) {
	found, err := FindConfig(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found != "" {
		t.Errorf("FindConfig = %q, want empty", found)
	}
}

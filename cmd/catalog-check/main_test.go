package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const (
	testManifest = "../../core/testdata/manifest.yaml"
	testBundle   = "../../core/testdata/bundle.json"
)

func TestRunPrintsCatalog(t *testing.T) {
	var out bytes.Buffer
	err := run(context.Background(), []string{
		"--manifest", testManifest,
		"--data", testBundle,
		"--frame-diameter", "20",
		"--hover-throttle", "0.5",
		"--log-level", "error",
	}, &out)
	if err != nil {
		t.Fatalf("run error: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"propeller subsets: polish, glossy",
		"propellers:        4 (15x5 16x5.4 18x6.1 26x8.5)",
		"hp-g8-c45: 2S 3S",
		"collision: 15x5 from polish shadowed by glossy",
		"base=560",
		"u7v2_kv420_22.2v_15x5cf",
		"1400.0",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestRunReadsEnvironment(t *testing.T) {
	t.Setenv("CATALOG_MANIFEST", testManifest)
	t.Setenv("CATALOG_DATA", testBundle)
	t.Setenv("CATALOG_LOG_LEVEL", "error")

	var out bytes.Buffer
	if err := run(context.Background(), nil, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if strings.Contains(out.String(), "QuadFrame(") {
		t.Fatalf("frame resolved without --frame-diameter:\n%s", out.String())
	}
}

func TestZeroThrottleAndDiameterAreExplicitValues(t *testing.T) {
	base := []string{"--manifest", testManifest, "--data", testBundle}

	cfg, err := loadConfig(base)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if cfg.EvaluateHover || cfg.ResolveFrame {
		t.Fatalf("unset flags enabled evaluation: %+v", cfg)
	}

	cfg, err = loadConfig(append(base, "--hover-throttle", "0", "--frame-diameter", "0"))
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	if !cfg.EvaluateHover || cfg.HoverThrottle != 0 || !cfg.ResolveFrame || cfg.FrameDiameter != 0 {
		t.Fatalf("explicit zero values ignored: %+v", cfg)
	}

	var out bytes.Buffer
	if err := run(context.Background(), append(base, "--hover-throttle", "0", "--log-level", "error"), &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "MOTOR") || !strings.Contains(out.String(), "u7v2_kv420_22.2v_15x5cf") {
		t.Fatalf("hover table not printed at throttle 0:\n%s", out.String())
	}
}

func TestRunReadsConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog-check.yaml")
	cfg := "manifest: " + testManifest + "\ndata: " + testBundle + "\nframe-diameter: 10\nlog-level: error\n"
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{"--config", path}, &out); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if !strings.Contains(out.String(), "base=300") {
		t.Fatalf("frame not resolved at config diameter:\n%s", out.String())
	}
}

func TestRunRequiresInputs(t *testing.T) {
	err := run(context.Background(), []string{"--manifest", testManifest}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "required") {
		t.Fatalf("err = %v, want missing input error", err)
	}
}

func TestRunReportsIntegrityFault(t *testing.T) {
	manifest := filepath.Join(t.TempDir(), "manifest.yaml")
	doc := `
propeller_subsets: [sbt_polish]
motors:
  - name: u11_kv120_48v_28x9.2cf
    voltage: 48
    kv: 120
    weight: 772
    propeller: 28x9.2
    thrust_vs_throttle: spl_u7_15x5_thrust
    current_vs_throttle: spl_u7_15x5_current
`
	if err := os.WriteFile(manifest, []byte(doc), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	err := run(context.Background(), []string{
		"--manifest", manifest, "--data", testBundle, "--log-level", "error",
	}, &bytes.Buffer{})
	if err == nil {
		t.Fatalf("expected lookup failure")
	}
	if !strings.Contains(err.Error(), "integrity fault (NotFound)") || !strings.Contains(err.Error(), `"28x9.2"`) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRunRejectsUnknownPolicy(t *testing.T) {
	err := run(context.Background(), []string{
		"--manifest", testManifest, "--data", testBundle, "--policy", "wrap",
	}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "wrap") {
		t.Fatalf("err = %v, want unknown policy error", err)
	}
}

func TestRunWithSQLiteStore(t *testing.T) {
	db := filepath.Join(t.TempDir(), "catalog.db")

	if err := run(context.Background(), []string{
		"--manifest", testManifest, "--data", testBundle, "--db", db, "--log-level", "error",
	}, &bytes.Buffer{}); err != nil {
		t.Fatalf("import run error: %v", err)
	}

	var out bytes.Buffer
	if err := run(context.Background(), []string{
		"--manifest", testManifest, "--db", db, "--frame-diameter", "20", "--log-level", "error",
	}, &out); err != nil {
		t.Fatalf("store run error: %v", err)
	}
	if !strings.Contains(out.String(), "propellers:        4") || !strings.Contains(out.String(), "base=560") {
		t.Fatalf("unexpected output from store:\n%s", out.String())
	}
}

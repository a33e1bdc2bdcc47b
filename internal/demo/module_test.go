package demo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/registry"
)

func TestRunWritesOneLinePerSiteInRange(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Map()
	cfg.Set("project_points_split_range", config.List(config.Number(3), config.Number(6)))

	rctx := registry.RunContext{
		Config:   cfg,
		OutFpath: filepath.Join(dir, "job"),
	}

	outPath, err := Run(rctx)
	if err != nil {
		t.Fatal(err)
	}
	if outPath != rctx.OutFpath+".csv" {
		t.Fatalf("Run() outPath = %q, want %q", outPath, rctx.OutFpath+".csv")
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 || lines[0] != "gid" || lines[1] != "3" || lines[3] != "5" {
		t.Fatalf("unexpected output contents: %q", lines)
	}
}

func TestRunFallsBackToOutDirJobNameWithoutOutFpath(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Map()
	cfg.Set("project_points_split_range", config.List(config.Number(0), config.Number(1)))

	rctx := registry.RunContext{
		Config:  cfg,
		OutDir:  dir,
		JobName: "fallback",
	}

	outPath, err := Run(rctx)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(dir, "fallback.csv")
	if outPath != want {
		t.Fatalf("Run() outPath = %q, want %q", outPath, want)
	}
	if _, err := os.Stat(want); err != nil {
		t.Fatal(err)
	}
}

func TestRunRejectsMalformedSplitRange(t *testing.T) {
	cfg := config.Map()
	cfg.Set("project_points_split_range", config.List(config.Number(1)))

	_, err := Run(registry.RunContext{Config: cfg, OutFpath: filepath.Join(t.TempDir(), "job")})
	if err == nil {
		t.Fatal("expected an error for a malformed split range")
	}
}

func TestModuleRegistersGenerateEntryPoint(t *testing.T) {
	r := registry.New()
	Module{}.Register(r)

	ep, ok := r.Lookup("generate")
	if !ok {
		t.Fatal("expected \"generate\" entry point to be registered")
	}
	if !ep.HasSplitKey("project_points") {
		t.Fatal("expected the generate entry point to declare project_points as a split key")
	}
	if !ep.WantsParam("tag") || !ep.WantsParam("out_fpath") {
		t.Fatal("expected the generate entry point to request tag and out_fpath")
	}
}

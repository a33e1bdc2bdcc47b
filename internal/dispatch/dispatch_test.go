package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nrel-gaps/ridge/internal/backend"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/model"
	"github.com/nrel-gaps/ridge/internal/points"
	"github.com/nrel-gaps/ridge/internal/registry"
	"github.com/nrel-gaps/ridge/internal/status"
)

func TestAbbrevDropsUnderscoresAndVowels(t *testing.T) {
	if got := abbrev("project_points"); got != "prjctpnts" {
		t.Fatalf("abbrev() = %q, want %q", got, "prjctpnts")
	}
}

func TestFormatTagValueIntegralNumber(t *testing.T) {
	if got := formatTagValue(config.Number(2020)); got != "2020" {
		t.Fatalf("formatTagValue() = %q, want %q", got, "2020")
	}
}

func newTestStore(t *testing.T) *status.Store {
	t.Helper()
	s, err := status.Open(context.Background(), t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestDispatchEnumeratesProductSplitKey(t *testing.T) {
	dir := t.TempDir()
	stepConfigPath := filepath.Join(dir, "config_gen.json")

	stepConfig := config.Map().
		Set("execution_control", config.Map().Set("option", config.String("local"))).
		Set("year", config.List(config.Number(2019), config.Number(2020)))

	ep := &registry.EntryPoint{
		Name:      "generate",
		SplitKeys: []registry.SplitKeyGroup{{Keys: []string{"year"}}},
	}

	d := New("ridge", newTestStore(t))
	be := backend.NewLocal()

	step := model.PipelineStep{Alias: "gen"}
	if err := d.Dispatch(context.Background(), step, stepConfigPath, stepConfig, ep, be); err != nil {
		t.Fatal(err)
	}

	for _, tag := range []string{"_yr2019", "_yr2020"} {
		path := taskConfigPath(stepConfigPath, tag)
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected task config file %s: %v", path, err)
		}
	}

	entry := d.Store.Get("gen", "_yr2019")
	if entry.JobStatus != status.Submitted {
		t.Fatalf("expected task to be submitted, got %+v", entry)
	}
}

func TestDispatchSkipsSuccessfulUnchangedTask(t *testing.T) {
	dir := t.TempDir()
	stepConfigPath := filepath.Join(dir, "config_gen.json")
	stepConfig := config.Map().Set("execution_control", config.Map().Set("option", config.String("local")))

	ep := &registry.EntryPoint{Name: "generate"}
	store := newTestStore(t)
	d := New("ridge", store)
	be := backend.NewLocal()

	step := model.PipelineStep{Alias: "gen"}

	// First dispatch materializes the task config so we can compute its
	// hash exactly as the dispatcher will.
	if err := d.Dispatch(context.Background(), step, stepConfigPath, stepConfig, ep, be); err != nil {
		t.Fatal(err)
	}
	entry := store.Get("gen", "")
	_ = store.Record(context.Background(), "gen", "", status.Entry{JobStatus: status.Successful, ConfigHash: entry.ConfigHash})

	be2 := &countingBackend{Local: backend.NewLocal()}
	if err := d.Dispatch(context.Background(), step, stepConfigPath, stepConfig, ep, be2); err != nil {
		t.Fatal(err)
	}
	if be2.submits != 0 {
		t.Fatalf("expected no resubmission of an unchanged successful task, got %d submits", be2.submits)
	}
}

type countingBackend struct {
	*backend.Local
	submits int
}

func (c *countingBackend) Submit(ctx context.Context, spec backend.SubmitSpec) (backend.SubmitResult, error) {
	c.submits++
	return c.Local.Submit(ctx, spec)
}

func TestDispatchRejectsConfigChangeAfterSuccess(t *testing.T) {
	dir := t.TempDir()
	stepConfigPath := filepath.Join(dir, "config_gen.json")
	store := newTestStore(t)
	_ = store.Record(context.Background(), "gen", "", status.Entry{JobStatus: status.Successful, ConfigHash: "stale-hash"})

	d := New("ridge", store)
	ep := &registry.EntryPoint{Name: "generate"}
	step := model.PipelineStep{Alias: "gen"}
	stepConfig := config.Map().Set("execution_control", config.Map().Set("option", config.String("local")))

	err := d.Dispatch(context.Background(), step, stepConfigPath, stepConfig, ep, backend.NewLocal())
	if err == nil {
		t.Fatal("expected consistency error for changed config on a successful task")
	}
}

func TestDispatchRejectsMissingSplitKey(t *testing.T) {
	dir := t.TempDir()
	stepConfigPath := filepath.Join(dir, "config_gen.json")
	stepConfig := config.Map().Set("execution_control", config.Map())

	ep := &registry.EntryPoint{
		Name:      "generate",
		SplitKeys: []registry.SplitKeyGroup{{Keys: []string{"year"}}},
	}
	d := New("ridge", newTestStore(t))
	step := model.PipelineStep{Alias: "gen"}

	err := d.Dispatch(context.Background(), step, stepConfigPath, stepConfig, ep, backend.NewLocal())
	if err == nil {
		t.Fatal("expected error when declared split key is missing from config")
	}
}

func TestBuildPointsAxisCollapsesLocalToOneNode(t *testing.T) {
	dir := t.TempDir()
	pointsPath := filepath.Join(dir, "project_points.csv")
	if err := os.WriteFile(pointsPath, []byte("gid\n0\n1\n2\n3\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stepConfig := config.Map().
		Set("execution_control", config.Map().Set("option", config.String("local")).Set("nodes", config.Number(4))).
		Set("project_points", config.String(pointsPath))

	ep := &registry.EntryPoint{
		Name:           "generate",
		SplitKeys:      []registry.SplitKeyGroup{{Keys: []string{ProjectPointsKey}}},
		InjectedParams: []string{"tag"},
	}

	d := &Dispatcher{Program: "ridge", LoadPoints: points.Load}
	a, err := d.buildPointsAxis(context.Background(), stepConfig, ep)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.picks) != 1 {
		t.Fatalf("expected local option to collapse to 1 chunk, got %d", len(a.picks))
	}
	if a.picks[0].tagFragment != "_j0" {
		t.Fatalf("tagFragment = %q, want _j0", a.picks[0].tagFragment)
	}
}

// TestBuildPointsAxisClampsWhenNodesExceedSites proves that asking for more
// nodes than there are sites produces one single-site chunk per site rather
// than an error or empty chunks, matching
// gaps/project_points.py:ProjectPoints.split's own behavior when
// sites_per_split floors to 1.
func TestBuildPointsAxisClampsWhenNodesExceedSites(t *testing.T) {
	dir := t.TempDir()
	pointsPath := filepath.Join(dir, "project_points.csv")
	if err := os.WriteFile(pointsPath, []byte("gid\n0\n1\n2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	stepConfig := config.Map().
		Set("execution_control", config.Map().Set("option", config.String("slurm")).Set("nodes", config.Number(10))).
		Set("project_points", config.String(pointsPath))

	ep := &registry.EntryPoint{
		Name:           "generate",
		SplitKeys:      []registry.SplitKeyGroup{{Keys: []string{ProjectPointsKey}}},
		InjectedParams: []string{"tag"},
	}

	d := &Dispatcher{Program: "ridge", LoadPoints: points.Load}
	a, err := d.buildPointsAxis(context.Background(), stepConfig, ep)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.picks) != 3 {
		t.Fatalf("expected nodes > sites to clamp to 3 single-site chunks, got %d", len(a.picks))
	}
	for i, pick := range a.picks {
		if got := pick.pointsRange.Len(); got != 1 {
			t.Fatalf("pick %d: range len = %d, want 1", i, got)
		}
	}
}

package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/model"
)

func mustParseBatchConfig(t *testing.T, v *config.Value) *model.BatchConfig {
	t.Helper()
	bc, err := model.ParseBatchConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	return bc
}

func TestExpandZipsWithinSetAndUnionsAcrossSets(t *testing.T) {
	v := config.Map().
		Set("pipeline_config", config.String("pipeline.json")).
		Set("sets", config.List(
			config.Map().
				Set("set_tag", config.String("s1")).
				Set("args", config.Map().
					Set("a", config.List(config.Number(1), config.Number(2))).
					Set("b", config.List(config.Number(3), config.Number(4)))).
				Set("files", config.List(config.String("config_gen.json"))),
		))
	bc := mustParseBatchConfig(t, v)

	entries, err := Expand(bc)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries from a zipped 2-tuple set, got %d", len(entries))
	}
	want := map[string]bool{"s1_a1_b3": true, "s1_a2_b4": true}
	for _, e := range entries {
		if !want[e.DirName] {
			t.Fatalf("unexpected directory name %q", e.DirName)
		}
	}
}

func TestExpandRejectsDuplicateDirectoryNames(t *testing.T) {
	v := config.Map().
		Set("sets", config.List(
			config.Map().
				Set("set_tag", config.String("s1")).
				Set("args", config.Map().Set("a", config.List(config.Number(1)))).
				Set("files", config.List(config.String("config.json"))),
			config.Map().
				Set("set_tag", config.String("s2")).
				Set("args", config.Map().Set("a", config.List(config.Number(1)))).
				Set("files", config.List(config.String("config.json"))),
		))
	bc, err := model.ParseBatchConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	// Force a collision: the two sets have identical args and differ only
	// by set_tag, so giving them the same tag yields the same directory
	// name, simulating a user authoring error.
	bc.Sets[1].SetTag = "s1"

	if _, err := Expand(bc); err == nil {
		t.Fatal("expected error for duplicate generated subdirectory name")
	}
}

func TestParseTableInfersNumericColumns(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "batch.csv")
	content := "set_tag,files,year,label\ns1,config_gen.json,2019,west\ns2,config_gen.json,2020,east\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	entries, err := ParseTable(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Overrides["year"].Kind() != config.KindNumber {
		t.Fatalf("expected year column to infer as a number")
	}
	if entries[0].Overrides["label"].Kind() != config.KindString {
		t.Fatalf("expected label column to infer as a string")
	}
}

func TestMaterializeCopiesAndSubstitutesThenWritesIndex(t *testing.T) {
	root := t.TempDir()
	stepConfigPath := filepath.Join(root, "config_gen.json")
	stepConfig := config.Map().Set("year", config.Number(0)).Set("label", config.String("orig"))
	if err := config.Dump(stepConfigPath, stepConfig); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "pipeline.json"), []byte(`{"pipeline":[{"gen":"config_gen.json"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	entries := []Entry{
		{
			DirName:  "s1_yr2019",
			Files:    []string{"config_gen.json"},
			ArgOrder: []string{"year"},
			Overrides: map[string]*config.Value{
				"year": config.Number(2019),
			},
		},
	}

	if err := Materialize(context.Background(), root, entries); err != nil {
		t.Fatal(err)
	}

	subConfigPath := filepath.Join(root, "s1_yr2019", "config_gen.json")
	subConfig, err := config.Load(subConfigPath)
	if err != nil {
		t.Fatal(err)
	}
	yearVal, _ := subConfig.Get("year")
	year, _ := yearVal.AsInt()
	if year != 2019 {
		t.Fatalf("expected substituted year=2019, got %d", year)
	}
	labelVal, _ := subConfig.Get("label")
	label, _ := labelVal.AsString()
	if label != "orig" {
		t.Fatalf("expected untouched key label to remain %q, got %q", "orig", label)
	}

	if _, err := os.Stat(filepath.Join(root, "s1_yr2019", "pipeline.json")); err != nil {
		t.Fatalf("expected pipeline.json to be copied verbatim into subdirectory: %v", err)
	}

	dirs, err := ReadIndex(root)
	if err != nil {
		t.Fatal(err)
	}
	if len(dirs) != 1 || dirs[0] != "s1_yr2019" {
		t.Fatalf("expected index to record the generated subdirectory, got %v", dirs)
	}
}

func TestDeleteRemovesIndexedSubdirectories(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.json"), []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}
	entries := []Entry{{DirName: "s1_yr2019", Files: nil}}
	if err := Materialize(context.Background(), root, entries); err != nil {
		t.Fatal(err)
	}

	if err := Delete(root); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "s1_yr2019")); !os.IsNotExist(err) {
		t.Fatal("expected generated subdirectory to be removed")
	}
	if _, err := os.Stat(indexPath(root)); !os.IsNotExist(err) {
		t.Fatal("expected batch index CSV to be removed")
	}
}

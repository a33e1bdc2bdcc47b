package model

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nrel-gaps/ridge/internal/config"
)

func pipelineEntry(alias, path, command string) *config.Value {
	m := config.Map().Set(alias, config.String(path))
	if command != "" {
		m.Set("command", config.String(command))
	}
	return m
}

func TestParsePipelineConfig(t *testing.T) {
	v := config.Map().Set("pipeline", config.List(
		pipelineEntry("gen", "./config_gen.json", ""),
		pipelineEntry("collect", "./config_collect.json", "collect-results"),
	))

	pc, err := ParsePipelineConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(pc.Steps) != 2 {
		t.Fatalf("got %d steps, want 2", len(pc.Steps))
	}
	if pc.Steps[0].CommandOrAlias() != "gen" {
		t.Fatalf("step 0 command = %q, want alias fallback %q", pc.Steps[0].CommandOrAlias(), "gen")
	}
	if pc.Steps[1].CommandOrAlias() != "collect-results" {
		t.Fatalf("step 1 command = %q, want %q", pc.Steps[1].CommandOrAlias(), "collect-results")
	}
}

func TestParsePipelineConfigRejectsDuplicateAlias(t *testing.T) {
	v := config.Map().Set("pipeline", config.List(
		pipelineEntry("gen", "./a.json", ""),
		pipelineEntry("gen", "./b.json", ""),
	))
	if _, err := ParsePipelineConfig(v); err == nil {
		t.Fatal("expected error for duplicate alias")
	}
}

func TestParsePipelineConfigRejectsEmpty(t *testing.T) {
	v := config.Map().Set("pipeline", config.List())
	if _, err := ParsePipelineConfig(v); err == nil {
		t.Fatal("expected error for empty pipeline")
	}
}

func TestParseExecutionControlDefaults(t *testing.T) {
	ec, err := ParseExecutionControl(config.Map())
	if err != nil {
		t.Fatal(err)
	}
	if ec.Option != "local" || ec.Nodes != 1 {
		t.Fatalf("got %+v, want local/1 defaults", ec)
	}
}

func TestParseExecutionControlRejectsZeroNodes(t *testing.T) {
	v := config.Map().Set("execution_control", config.Map().Set("nodes", config.Number(0)))
	if _, err := ParseExecutionControl(v); err == nil {
		t.Fatal("expected error for nodes=0")
	}
}

func TestParseBatchConfigZippedArgs(t *testing.T) {
	v := config.Map().
		Set("pipeline_config", config.String("./config_pipeline.json")).
		Set("sets", config.List(
			config.Map().
				Set("set_tag", config.String("set1")).
				Set("args", config.Map().
					Set("dset", config.List(config.String("windspeed"), config.String("temperature")))).
				Set("files", config.List(config.String("./config_gen.json"))),
		))

	bc, err := ParseBatchConfig(v)
	if err != nil {
		t.Fatal(err)
	}
	if len(bc.Sets) != 1 || len(bc.Sets[0].Args["dset"]) != 2 {
		t.Fatalf("unexpected batch config: %+v", bc)
	}
	wantOrder := []string{"dset"}
	wantFiles := []string{"./config_gen.json"}
	if diff := cmp.Diff(wantOrder, bc.Sets[0].ArgOrder); diff != "" {
		t.Errorf("ArgOrder mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantFiles, bc.Sets[0].Files); diff != "" {
		t.Errorf("Files mismatch (-want +got):\n%s", diff)
	}
}

func TestParseBatchConfigRejectsMismatchedZipLengths(t *testing.T) {
	v := config.Map().
		Set("pipeline_config", config.String("./config_pipeline.json")).
		Set("sets", config.List(
			config.Map().
				Set("args", config.Map().
					Set("a", config.List(config.Number(1), config.Number(2))).
					Set("b", config.List(config.Number(1)))).
				Set("files", config.List(config.String("./x.json"))),
		))
	if _, err := ParseBatchConfig(v); err == nil {
		t.Fatal("expected error for mismatched zip lengths")
	}
}

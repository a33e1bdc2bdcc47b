// Package model holds the plain data shapes decoded out of a
// config.Value tree: pipeline configs, step references, the
// execution_control block, and batch configs, grounded on
// gaps/pipeline.py:PipelineStep/Pipeline and gaps/batch.py:BatchJob.
package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/errkind"
)

// PipelineStep is one reference within a Pipeline Config: an alias unique
// within the pipeline, a path to its step config file, and an optional
// command name naming a different registered entry point than the alias.
// Grounded on gaps/pipeline.py:PipelineStep, which defaults Command to
// Alias when the "command" key is omitted.
type PipelineStep struct {
	Alias      string
	ConfigPath string
	Command    string
}

// CommandOrAlias returns Command if set, else Alias, matching
// PipelineStep.command's fallback behavior.
func (s PipelineStep) CommandOrAlias() string {
	if s.Command != "" {
		return s.Command
	}
	return s.Alias
}

// PipelineConfig is an ordered sequence of step references plus the
// logging block.
type PipelineConfig struct {
	Steps      []PipelineStep
	LogFile    string
	LogLevel   string
}

// ParsePipelineConfig decodes a config.Value tree shaped like a pipeline
// config file: a "pipeline" list of single-entry (plus optional
// "command") mappings, and an optional "logging" block.
func ParsePipelineConfig(v *config.Value) (*PipelineConfig, error) {
	pipelineVal, ok := v.Get("pipeline")
	if !ok {
		return nil, errkind.Configf("model.ParsePipelineConfig", "", `missing top-level "pipeline" key`)
	}
	items, err := pipelineVal.AsList()
	if err != nil {
		return nil, errkind.Configf("model.ParsePipelineConfig", "pipeline", `"pipeline" must be a list: %w`, err)
	}

	pc := &PipelineConfig{}
	seen := map[string]bool{}
	for i, item := range items {
		step, err := parsePipelineStep(item)
		if err != nil {
			return nil, errkind.Configf("model.ParsePipelineConfig", fmt.Sprintf("pipeline[%d]", i), "%w", err)
		}
		if seen[step.Alias] {
			return nil, errkind.Configf("model.ParsePipelineConfig", step.Alias, "duplicate step alias %q", step.Alias)
		}
		seen[step.Alias] = true
		pc.Steps = append(pc.Steps, step)
	}
	if len(pc.Steps) == 0 {
		return nil, errkind.Configf("model.ParsePipelineConfig", "pipeline", "pipeline must declare at least one step")
	}

	if logging, ok := v.Get("logging"); ok {
		pc.LogFile, _ = logging.GetOr("log_file", config.Null()).AsString()
		pc.LogLevel, _ = logging.GetOr("log_level", config.String("INFO")).AsString()
	} else {
		pc.LogLevel = "INFO"
	}
	return pc, nil
}

// parsePipelineStep parses one "{alias: path, command?: name}" mapping,
// following PipelineStep._parse_step_dict: the command key is popped out
// first, and the single remaining key/value pair is the alias/path.
func parsePipelineStep(item *config.Value) (PipelineStep, error) {
	keys, err := item.Keys()
	if err != nil {
		return PipelineStep{}, fmt.Errorf("each pipeline entry must be a mapping: %w", err)
	}

	var step PipelineStep
	for _, k := range keys {
		if k == "command" {
			cmd, err := item.GetOr("command", config.Null()).AsString()
			if err != nil {
				return PipelineStep{}, fmt.Errorf(`"command" must be a string: %w`, err)
			}
			step.Command = cmd
			continue
		}
		if step.Alias != "" {
			return PipelineStep{}, fmt.Errorf("pipeline entry has more than one step key: %q and %q", step.Alias, k)
		}
		pathVal, _ := item.Get(k)
		path, err := pathVal.AsString()
		if err != nil {
			return PipelineStep{}, fmt.Errorf("step config path for %q must be a string: %w", k, err)
		}
		step.Alias = k
		step.ConfigPath = path
	}
	if step.Alias == "" {
		return PipelineStep{}, fmt.Errorf("pipeline entry did not name a step alias")
	}
	return step, nil
}

// ExecutionControl is the recognized subset of the execution_control block.
// Step-specific extensions the entry point declares are left in the step
// config's raw Value tree and not modeled here.
type ExecutionControl struct {
	Option      string // "local" or a cluster backend name
	Allocation  string
	WalltimeHrs float64
	QOS         string
	Memory      string
	MemoryGB    float64
	Nodes       int
	Queue       string
	Feature     string
	CondaEnv    string
	Module      string
	ShScript    string
}

// ParseExecutionControl decodes the execution_control block from a step
// config. Nodes defaults to 1.
func ParseExecutionControl(v *config.Value) (ExecutionControl, error) {
	ec := ExecutionControl{Option: "local", Nodes: 1}
	block, ok := v.Get("execution_control")
	if !ok {
		return ec, nil
	}
	if opt, ok := block.Get("option"); ok {
		s, err := opt.AsString()
		if err != nil {
			return ec, errkind.Configf("model.ParseExecutionControl", "execution_control.option", "%w", err)
		}
		ec.Option = s
	}
	if nodes, ok := block.Get("nodes"); ok {
		n, err := nodes.AsInt()
		if err != nil {
			return ec, errkind.Configf("model.ParseExecutionControl", "execution_control.nodes", "%w", err)
		}
		if n < 1 {
			return ec, errkind.Configf("model.ParseExecutionControl", "execution_control.nodes", "nodes must be >= 1, got %d", n)
		}
		ec.Nodes = n
	}
	ec.Allocation, _ = stringOr(block, "allocation")
	ec.QOS, _ = stringOr(block, "qos")
	ec.Memory, _ = stringOr(block, "memory")
	ec.MemoryGB = parseMemoryGB(ec.Memory)
	ec.Queue, _ = stringOr(block, "queue")
	ec.Feature, _ = stringOr(block, "feature")
	ec.CondaEnv, _ = stringOr(block, "conda_env")
	ec.Module, _ = stringOr(block, "module")
	ec.ShScript, _ = stringOr(block, "sh_script")
	if wt, ok := block.Get("walltime"); ok {
		n, err := wt.AsNumber()
		if err != nil {
			return ec, errkind.Configf("model.ParseExecutionControl", "execution_control.walltime", "%w", err)
		}
		ec.WalltimeHrs = n
	}
	return ec, nil
}

// parseMemoryGB converts a free-form memory string ("16GB", "16000MB", or a
// bare number of GB) to gigabytes. An unparseable or empty string yields 0,
// meaning no explicit memory request is passed through to the backend.
func parseMemoryGB(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "gb"):
		n, _ := strconv.ParseFloat(strings.TrimSpace(lower[:len(lower)-2]), 64)
		return n
	case strings.HasSuffix(lower, "mb"):
		n, _ := strconv.ParseFloat(strings.TrimSpace(lower[:len(lower)-2]), 64)
		return n / 1000
	case strings.HasSuffix(lower, "g"):
		n, _ := strconv.ParseFloat(strings.TrimSpace(lower[:len(lower)-1]), 64)
		return n
	default:
		n, _ := strconv.ParseFloat(lower, 64)
		return n
	}
}

func stringOr(v *config.Value, key string) (string, bool) {
	val, ok := v.Get(key)
	if !ok {
		return "", false
	}
	s, err := val.AsString()
	if err != nil {
		return "", false
	}
	return s, true
}

// BatchArgSet is one "sets" entry in a Batch Config: a zipped sweep over
// args, the config files those args live in, and an optional set_tag
// prefix, grounded on gaps/batch.py's BatchSet/_parse_config, redesigned
// to be a lock-step (zipped) sweep instead of the original's per-set
// Cartesian product.
type BatchArgSet struct {
	SetTag string
	Args   map[string][]*config.Value
	// ArgOrder preserves declared key order for deterministic tag/name
	// generation.
	ArgOrder []string
	Files    []string
}

// BatchConfig names a pipeline config and the sets to expand across it.
type BatchConfig struct {
	PipelineConfigPath string
	Sets               []BatchArgSet
}

// ParseBatchConfig decodes the "sets"-style batch config. The
// "pipeline_config" key is optional; when it is absent PipelineConfigPath
// is empty.
func ParseBatchConfig(v *config.Value) (*BatchConfig, error) {
	var pcPath string
	if pcVal, ok := v.Get("pipeline_config"); ok {
		s, err := pcVal.AsString()
		if err != nil {
			return nil, errkind.Configf("model.ParseBatchConfig", "pipeline_config", "%w", err)
		}
		pcPath = s
	}
	bc := &BatchConfig{PipelineConfigPath: pcPath}

	setsVal, ok := v.Get("sets")
	if !ok {
		return nil, errkind.Configf("model.ParseBatchConfig", "sets", `missing "sets" key`)
	}
	setItems, err := setsVal.AsList()
	if err != nil {
		return nil, errkind.Configf("model.ParseBatchConfig", "sets", `"sets" must be a list: %w`, err)
	}

	seenTags := map[string]bool{}
	for i, setItem := range setItems {
		set, err := parseBatchArgSet(setItem)
		if err != nil {
			return nil, errkind.Configf("model.ParseBatchConfig", fmt.Sprintf("sets[%d]", i), "%w", err)
		}
		if seenTags[set.SetTag] {
			return nil, errkind.Configf("model.ParseBatchConfig", set.SetTag, "duplicate set_tag %q", set.SetTag)
		}
		seenTags[set.SetTag] = true
		bc.Sets = append(bc.Sets, set)
	}
	return bc, nil
}

func parseBatchArgSet(v *config.Value) (BatchArgSet, error) {
	set := BatchArgSet{Args: map[string][]*config.Value{}}
	set.SetTag, _ = stringOr(v, "set_tag")

	argsVal, ok := v.Get("args")
	if !ok {
		return set, fmt.Errorf(`missing "args" key`)
	}
	keys, err := argsVal.Keys()
	if err != nil {
		return set, fmt.Errorf(`"args" must be a mapping: %w`, err)
	}
	var length = -1
	for _, k := range keys {
		valsVal, _ := argsVal.Get(k)
		vals, err := valsVal.AsList()
		if err != nil {
			return set, fmt.Errorf("batch argument %q must be a list: %w", k, err)
		}
		if length == -1 {
			length = len(vals)
		} else if len(vals) != length {
			return set, fmt.Errorf("batch arguments must be zipped (same length): %q has %d, want %d", k, len(vals), length)
		}
		set.Args[k] = vals
		set.ArgOrder = append(set.ArgOrder, k)
	}

	filesVal, ok := v.Get("files")
	if !ok {
		return set, fmt.Errorf(`missing "files" key`)
	}
	fileItems, err := filesVal.AsList()
	if err != nil {
		return set, fmt.Errorf(`"files" must be a list: %w`, err)
	}
	for _, f := range fileItems {
		s, err := f.AsString()
		if err != nil {
			return set, fmt.Errorf(`"files" entries must be strings: %w`, err)
		}
		set.Files = append(set.Files, s)
	}
	return set, nil
}

// Package dispatch implements the Step Dispatcher: given a
// step alias, a step config, and a registered entry point, it enumerates
// the split-key product into concrete tasks, tags and materializes each
// task's config, dedupes against the Status Store, and submits through
// the Submission Backend.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/nrel-gaps/ridge/internal/backend"
	"github.com/nrel-gaps/ridge/internal/config"
	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/hashkey"
	"github.com/nrel-gaps/ridge/internal/model"
	"github.com/nrel-gaps/ridge/internal/points"
	"github.com/nrel-gaps/ridge/internal/registry"
	"github.com/nrel-gaps/ridge/internal/status"
)

// ProjectPointsKey is the reserved split-key name the points axis
// replaces with a partitioned chunk.
const ProjectPointsKey = "project_points"

// Task is one concrete submission derived from a step.
type Task struct {
	Tag        string
	Config     *config.Value
	ConfigPath string
}

// Dispatcher owns the collaborators needed to carry out one step's dispatch.
type Dispatcher struct {
	Program    string // binary name used in the generated command line
	Store      *status.Store
	LoadPoints func(path string) (*points.Table, error)
}

// New constructs a Dispatcher whose LoadPoints is points.Load.
func New(program string, store *status.Store) *Dispatcher {
	return &Dispatcher{Program: program, Store: store, LoadPoints: points.Load}
}

// Dispatch runs the algorithm for one step: pre-process, validate,
// enumerate, tag, materialize, dedupe, and submit. The directory of
// stepConfigPath is where the sibling task config files are resolved and
// written.
func (d *Dispatcher) Dispatch(ctx context.Context, step model.PipelineStep, stepConfigPath string, stepConfig *config.Value, ep *registry.EntryPoint, be backend.Backend) error {
	log := ctxlog.FromContext(ctx)

	if ep.Preprocessor != nil {
		pctx := registry.PreprocessContext{JobName: step.Alias}
		if err := ep.Preprocessor(pctx, stepConfig); err != nil {
			return errkind.Configf("dispatch.Dispatch", step.Alias, "pre-processor failed: %w", err)
		}
	}

	axes, err := d.buildAxes(ctx, stepConfig, ep)
	if err != nil {
		return errkind.Configf("dispatch.Dispatch", step.Alias, "%w", err)
	}

	tasks, err := enumerateTasks(stepConfig, axes, ep)
	if err != nil {
		return errkind.Configf("dispatch.Dispatch", step.Alias, "%w", err)
	}
	if len(tasks) == 0 {
		return errkind.Configf("dispatch.Dispatch", step.Alias, "step produced zero tasks; an empty step is illegal")
	}

	seenTags := map[string]bool{}
	ec, err := model.ParseExecutionControl(stepConfig)
	if err != nil {
		return errkind.Configf("dispatch.Dispatch", step.Alias, "%w", err)
	}

	for _, task := range tasks {
		if seenTags[task.Tag] {
			return errkind.Consistencyf("dispatch.Dispatch", step.Alias, "duplicate task tag %q", task.Tag)
		}
		seenTags[task.Tag] = true

		task.ConfigPath = taskConfigPath(stepConfigPath, task.Tag)
		if err := config.Dump(task.ConfigPath, task.Config); err != nil {
			return errkind.Runtimef("dispatch.Dispatch", task.ConfigPath, "writing task config: %w", err)
		}

		hash := hashkey.Of(task.Config)
		existing := d.Store.Get(step.Alias, task.Tag)

		submit, err := d.decide(ctx, step.Alias, task.Tag, hash, existing, be)
		if err != nil {
			return err
		}
		if !submit {
			log.Debug("dispatch: skipping up-to-date task", "step", step.Alias, "tag", task.Tag)
			continue
		}

		warnExcessiveAUUsage(log, step.Alias, be, ec, len(tasks))

		cmd := d.commandLine(step, task)
		res, err := be.Submit(ctx, backend.SubmitSpec{
			JobName: step.Alias + task.Tag,
			Command: cmd,
			WorkDir: filepath.Dir(stepConfigPath),
			Resources: backend.Resources{
				Allocation:  ec.Allocation,
				WalltimeHrs: ec.WalltimeHrs,
				QOS:         ec.QOS,
				MemoryGB:    ec.MemoryGB,
				Feature:     ec.Feature,
				CondaEnv:    ec.CondaEnv,
				Module:      ec.Module,
				ShScript:    ec.ShScript,
				Queue:       ec.Queue,
			},
		})
		if err != nil {
			return errkind.Submissionf("dispatch.Dispatch", fmt.Sprintf("%s/%s", step.Alias, task.Tag), "%w", err)
		}

		if err := d.Store.Record(ctx, step.Alias, task.Tag, status.Entry{
			JobID:      res.JobID,
			JobStatus:  status.Submitted,
			Hardware:   be.Name(),
			ConfigHash: hash,
		}); err != nil {
			return err
		}
		log.Info("dispatch: submitted task", "step", step.Alias, "tag", task.Tag, "job_id", res.JobID)
	}
	return nil
}

// decide implements the dedupe rule: skip a task whose prior run succeeded
// with the same config hash, and name a consistency error when a
// successful task's config changed since.
func (d *Dispatcher) decide(ctx context.Context, stepAlias, tag, hash string, existing status.Entry, be backend.Backend) (bool, error) {
	switch existing.JobStatus {
	case status.Successful:
		if existing.ConfigHash == hash {
			return false, nil
		}
		return false, errkind.Consistencyf("dispatch.decide", fmt.Sprintf("%s/%s", stepAlias, tag),
			"task already completed successfully but its input config changed; reset the step before resubmitting")
	case status.Failed, status.NotSubmitted:
		return true, nil
	case status.Submitted, status.Running:
		if existing.JobID == "" {
			return true, nil
		}
		live, err := be.IsLive(ctx, existing.JobID)
		if err != nil {
			return false, errkind.Reconciliationf("dispatch.decide", fmt.Sprintf("%s/%s", stepAlias, tag), "%w", err)
		}
		return !live, nil
	default:
		return true, nil
	}
}

// maxAUBeforeWarning names the hardware-specific AU threshold past which
// a submission logs a non-fatal warning, grounded on
// gaps/cli/config.py:MAX_AU_BEFORE_WARNING. Hardware not listed here has no
// threshold.
var maxAUBeforeWarning = map[string]int{
	"eagle":   10_000,
	"kestrel": 35_000,
}

// warnExcessiveAUUsage logs a warning when a step's total estimated AU
// usage (num tasks * walltime * QOS factor * hardware charge factor)
// exceeds the hardware's threshold, matching
// gaps/cli/config.py:_warn_about_excessive_au_usage. This never blocks
// submission; it only surfaces the estimate to the operator.
func warnExcessiveAUUsage(log *slog.Logger, stepAlias string, be backend.Backend, ec model.ExecutionControl, numTasks int) {
	chargeFactor := be.ChargeFactor()
	if chargeFactor == 0 || ec.WalltimeHrs <= 0 {
		return
	}
	qosFactor := 1
	if strings.EqualFold(ec.QOS, "high") {
		qosFactor = 2
	}
	estimatedAU := int(float64(numTasks) * ec.WalltimeHrs * float64(qosFactor) * float64(chargeFactor))
	threshold, ok := maxAUBeforeWarning[strings.ToLower(be.Name())]
	if !ok {
		return
	}
	if estimatedAU > threshold {
		log.Warn("dispatch: step may use a large number of allocation units", "step", stepAlias, "estimated_au", estimatedAU, "threshold", threshold)
	}
}

// commandLine builds the leaf invocation a Submission Backend runs on a
// cluster node. --step carries the pipeline alias (which may differ from
// the command name) so the leaf process can key its self-reported
// completion into the same Status Store row the Dispatcher keys by.
func (d *Dispatcher) commandLine(step model.PipelineStep, task Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s -c %s --step %s", d.Program, step.CommandOrAlias(), task.ConfigPath, step.Alias)
	if task.Tag != "" {
		fmt.Fprintf(&b, " --tag %s", task.Tag)
	}
	return b.String()
}

func taskConfigPath(stepConfigPath, tag string) string {
	ext := filepath.Ext(stepConfigPath)
	base := strings.TrimSuffix(stepConfigPath, ext)
	if tag == "" {
		return base + "_task" + ext
	}
	return base + tag + ext
}

// axis is one enumeration dimension: either a declared split-key group
// (zipped or single product key) or the special project_points axis.
type axis struct {
	isPoints bool
	keys     []string
	picks    []axisPick
}

// axisPick is one value this axis can take: the per-key scalar values it
// contributes, and the tag fragment it renders.
type axisPick struct {
	values      map[string]*config.Value
	tagFragment string
	pointsRange points.Range
}

func (d *Dispatcher) buildAxes(ctx context.Context, stepConfig *config.Value, ep *registry.EntryPoint) ([]axis, error) {
	var axes []axis
	for _, group := range ep.SplitKeys {
		if len(group.Keys) == 1 && group.Keys[0] == ProjectPointsKey {
			a, err := d.buildPointsAxis(ctx, stepConfig, ep)
			if err != nil {
				return nil, err
			}
			axes = append(axes, a)
			continue
		}
		a, err := buildKeyAxis(stepConfig, group)
		if err != nil {
			return nil, err
		}
		axes = append(axes, a)
	}
	return axes, nil
}

func buildKeyAxis(stepConfig *config.Value, group registry.SplitKeyGroup) (axis, error) {
	a := axis{keys: group.Keys}

	lists := make(map[string][]*config.Value, len(group.Keys))
	length := -1
	for _, key := range group.Keys {
		val, ok := stepConfig.Get(key)
		if !ok {
			return a, fmt.Errorf("declared split key %q is missing from the step config", key)
		}
		items, err := val.AsList()
		if err != nil {
			return a, fmt.Errorf("split key %q must hold a sequence: %w", key, err)
		}
		if len(group.Keys) > 1 {
			if length == -1 {
				length = len(items)
			} else if len(items) != length {
				return a, fmt.Errorf("zipped split keys must share length: %q has %d, want %d", key, len(items), length)
			}
		}
		lists[key] = items
	}

	if len(group.Keys) == 1 {
		key := group.Keys[0]
		for _, v := range lists[key] {
			a.picks = append(a.picks, axisPick{
				values:      map[string]*config.Value{key: v},
				tagFragment: tagFragment(key, v),
			})
		}
		return a, nil
	}

	for i := 0; i < length; i++ {
		pick := axisPick{values: map[string]*config.Value{}}
		var frag strings.Builder
		for _, key := range group.Keys {
			v := lists[key][i]
			pick.values[key] = v
			frag.WriteString(tagFragment(key, v))
		}
		pick.tagFragment = frag.String()
		a.picks = append(a.picks, pick)
	}
	return a, nil
}

func (d *Dispatcher) buildPointsAxis(ctx context.Context, stepConfig *config.Value, ep *registry.EntryPoint) (axis, error) {
	a := axis{isPoints: true, keys: []string{ProjectPointsKey}}

	pathVal, ok := stepConfig.Get(ProjectPointsKey)
	if !ok {
		return a, fmt.Errorf(`declared split key %q is missing from the step config`, ProjectPointsKey)
	}

	ec, err := model.ParseExecutionControl(stepConfig)
	if err != nil {
		return a, err
	}
	nodes := ec.Nodes

	var n int
	if path, serr := pathVal.AsString(); serr == nil {
		tbl, err := d.LoadPoints(path)
		if err != nil {
			return a, err
		}
		n = tbl.Len()
	} else if num, nerr := pathVal.AsNumber(); nerr == nil {
		n = int(num)
	} else {
		return a, fmt.Errorf("project_points must be a file path or a site count")
	}

	wantNodes := nodes
	if ec.Option == "local" {
		wantNodes = 1
	}
	ranges := points.PartitionRanges(n, wantNodes)
	if wantNodes > len(ranges) {
		ctxlog.FromContext(ctx).Warn("dispatch: fewer project_points chunks than requested nodes",
			"sites", n, "requested_nodes", wantNodes, "chunks", len(ranges))
	}

	wantsTag := ep.WantsParam("tag")
	for i, r := range ranges {
		frag := ""
		if wantsTag {
			frag = pointsTagFragment(i)
		}
		a.picks = append(a.picks, axisPick{
			values:      map[string]*config.Value{},
			tagFragment: frag,
			pointsRange: r,
		})
	}
	return a, nil
}

// enumerateTasks walks the Cartesian product of axes' picks, building one
// Task per combination. Zero axes yields exactly
// one task over the unmodified step config.
func enumerateTasks(stepConfig *config.Value, axes []axis, ep *registry.EntryPoint) ([]Task, error) {
	if len(axes) == 0 {
		return []Task{{Tag: "", Config: stepConfig}}, nil
	}

	var tasks []Task
	var walk func(i int, tag string, overrides map[string]*config.Value, pointsRange *points.Range)
	walk = func(i int, tag string, overrides map[string]*config.Value, pointsRange *points.Range) {
		if i == len(axes) {
			cfg := applyOverrides(stepConfig, overrides, pointsRange)
			tasks = append(tasks, Task{Tag: tag, Config: cfg})
			return
		}
		for _, pick := range axes[i].picks {
			nextOverrides := map[string]*config.Value{}
			for k, v := range overrides {
				nextOverrides[k] = v
			}
			for k, v := range pick.values {
				nextOverrides[k] = v
			}
			nextRange := pointsRange
			if axes[i].isPoints {
				r := pick.pointsRange
				nextRange = &r
			}
			walk(i+1, tag+pick.tagFragment, nextOverrides, nextRange)
		}
	}
	walk(0, "", map[string]*config.Value{}, nil)
	return tasks, nil
}

// applyOverrides clones stepConfig and replaces each split key's sequence
// with its scalar slice for this task. The
// project_points axis additionally injects "project_points_split_range"
// rather than replacing "project_points" itself, matching
// gaps/cli/preprocessing.py:split_project_points_into_ranges.
func applyOverrides(stepConfig *config.Value, overrides map[string]*config.Value, pointsRange *points.Range) *config.Value {
	clone := config.Clone(stepConfig)
	for k, v := range overrides {
		clone.Set(k, v)
	}
	if pointsRange != nil {
		clone.Set("project_points_split_range", config.List(
			config.Number(float64(pointsRange.Start)),
			config.Number(float64(pointsRange.End)),
		))
	}
	return clone
}

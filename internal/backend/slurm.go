package backend

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/nrel-gaps/ridge/internal/fsutil"
)

func writeScript(path, contents string) error {
	return fsutil.WriteFileAtomic(path, []byte(contents), 0o755)
}

// scriptPathFor derives the sbatch script path Submit wrote for jobName,
// so Cleanup can locate it without keeping any state of its own (an
// in-memory record would not survive backendFor constructing a fresh
// *SLURM on every reconciliation pass).
func scriptPathFor(jobName, workDir string) string {
	return workDir + "/" + jobName + ".sh"
}

// commandRunner abstracts process execution so tests can substitute a
// fake scheduler without a real SLURM cluster.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (stdout string, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.Output()
	return string(out), err
}

// chargeFactors mirrors gaps/status.py:HardwareOption.charge_factor, the
// AU-per-node-hour multiplier used for the excessive-usage warning.
var chargeFactors = map[string]int{
	"kestrel": 10,
	"eagle":   3,
	"slurm":   0,
	"awspc":   0,
}

// SLURM submits jobs to a SLURM-managed cluster via sbatch/squeue/scancel,
// grounded on gaps/hpc.py:SLURM.make_script_str and HpcJobManager's
// submit/check_status/cancel trio.
type SLURM struct {
	hardware string
	run      commandRunner
}

// NewSLURM constructs a SLURM backend for the named hardware ("slurm",
// "kestrel", "eagle", "awspc").
func NewSLURM(hardware string) *SLURM {
	return &SLURM{hardware: hardware, run: execRunner{}}
}

func (s *SLURM) Name() string { return s.hardware }

func (s *SLURM) ChargeFactor() int { return chargeFactors[s.hardware] }

var scriptFuncs = func() template.FuncMap {
	fns := sprig.TxtFuncMap()
	fns["walltimeToHHMMSS"] = walltimeToHHMMSS
	return fns
}()

var scriptTemplate = template.Must(template.New("slurm").Funcs(scriptFuncs).Parse(
	`#!/bin/bash
{{- if .Resources.Allocation }}
#SBATCH --account={{ .Resources.Allocation }}
{{- end }}
{{- if .Resources.WalltimeHrs }}
#SBATCH --time={{ walltimeToHHMMSS .Resources.WalltimeHrs }}
{{- end }}
#SBATCH --job-name={{ .JobName | quote }}
#SBATCH --nodes=1
#SBATCH --output={{ .StdoutPath }}/{{ .JobName }}_%j.o
#SBATCH --error={{ .StdoutPath }}/{{ .JobName }}_%j.e
{{- if .Resources.QOS }}
#SBATCH --qos={{ .Resources.QOS }}
{{- end }}
{{- if .Resources.Feature }}
#SBATCH {{ .Resources.Feature }}
{{- end }}
{{- if .Resources.MemoryGB }}
#SBATCH --mem={{ .MemoryMB }}
{{- end }}
{{- if .Resources.CondaEnv }}
source activate {{ .Resources.CondaEnv }}
{{- end }}
echo Running on: $HOSTNAME
{{- if .Resources.ShScript }}
{{ .Resources.ShScript }}
{{- end }}
cd {{ .WorkDir }}
{{ .Command }}
`))

func walltimeToHHMMSS(hours float64) string {
	totalMinutes := int(hours * 60)
	h := totalMinutes / 60
	m := totalMinutes % 60
	return fmt.Sprintf("%d:%02d:00", h, m)
}

// scriptData adds pre-computed, template-friendly fields to a SubmitSpec.
type scriptData struct {
	SubmitSpec
	MemoryMB int
}

// renderScript renders the sbatch script for spec, following
// SLURM.make_script_str's field layout.
func (s *SLURM) renderScript(spec SubmitSpec) (string, error) {
	data := scriptData{SubmitSpec: spec, MemoryMB: int(spec.Resources.MemoryGB * 1000)}
	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("backend.SLURM: rendering submission script: %w", err)
	}
	return buf.String(), nil
}

// Script implements Backend.
func (s *SLURM) Script(spec SubmitSpec) (string, error) {
	return s.renderScript(spec)
}

func (s *SLURM) Submit(ctx context.Context, spec SubmitSpec) (SubmitResult, error) {
	script, err := s.renderScript(spec)
	if err != nil {
		return SubmitResult{}, err
	}
	scriptPath := scriptPathFor(spec.JobName, spec.WorkDir)
	if err := writeScript(scriptPath, script); err != nil {
		return SubmitResult{}, fmt.Errorf("backend.SLURM: writing submission script: %w", err)
	}

	out, err := s.run.Run(ctx, "sbatch", scriptPath)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("backend.SLURM: sbatch failed: %w", err)
	}
	jobID, err := parseSbatchOutput(out)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("backend.SLURM: %w", err)
	}
	return SubmitResult{JobID: jobID}, nil
}

// parseSbatchOutput extracts the job id from sbatch's
// "Submitted batch job 12345" stdout line.
func parseSbatchOutput(out string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) == 0 {
		return "", fmt.Errorf("empty sbatch output")
	}
	last := fields[len(fields)-1]
	if _, err := strconv.Atoi(last); err != nil {
		return "", fmt.Errorf("could not parse job id from sbatch output %q", out)
	}
	return last, nil
}

func (s *SLURM) IsLive(ctx context.Context, jobID string) (bool, error) {
	out, err := s.run.Run(ctx, "squeue", "-j", jobID, "-h")
	if err != nil {
		// squeue exits non-zero once a job has fully left the queue on
		// some SLURM versions; treat that the same as an empty result.
		return false, nil
	}
	return strings.TrimSpace(out) != "", nil
}

func (s *SLURM) Cancel(ctx context.Context, jobID string) error {
	_, err := s.run.Run(ctx, "scancel", jobID)
	return err
}

// Cleanup implements Backend: it removes the sbatch script Submit wrote
// for jobName, per the Submission Backend's ownership of the submission
// script file it writes. A missing file (already cleaned up, or Submit
// never reached the write) is not an error.
func (s *SLURM) Cleanup(jobName, workDir string) error {
	if err := os.Remove(scriptPathFor(jobName, workDir)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backend.SLURM: removing submission script: %w", err)
	}
	return nil
}

// Package status implements the Status Store: a key-value
// store over (step-alias, task-tag) with atomic single-task updates and a
// read-only bulk view. Grounded on gaps/status.py:Status, whose
// update_from_all_job_files folds one-file-per-job records into an
// aggregated snapshot, and whose dump() backs up the previous snapshot
// before overwriting it.
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nrel-gaps/ridge/internal/ctxlog"
	"github.com/nrel-gaps/ridge/internal/errkind"
	"github.com/nrel-gaps/ridge/internal/fsutil"

	"context"
)

// State is one of the task lifecycle states.
type State string

const (
	NotSubmitted State = "not-submitted"
	Submitted    State = "submitted"
	Running      State = "running"
	Successful   State = "successful"
	Failed       State = "failed"
)

// IsProcessing reports whether s is submitted or running, the two
// non-terminal, "still moving" states, mirroring
// StatusOption.is_processing.
func (s State) IsProcessing() bool { return s == Submitted || s == Running }

// IsTerminal reports whether s is successful or failed.
func (s State) IsTerminal() bool { return s == Successful || s == Failed }

const dirName = ".gaps"
const aggregateFileName = "status.json"
const backupSuffix = "_backup"
const monitorPIDFileName = "monitor_pid.json"

// Entry is one task's status record.
type Entry struct {
	JobID          string    `json:"job_id,omitempty"`
	JobStatus      State     `json:"job_status"`
	Hardware       string    `json:"hardware,omitempty"`
	QOS            string    `json:"qos,omitempty"`
	OutFile        string    `json:"out_file,omitempty"`
	TimeSubmitted  string    `json:"time_submitted,omitempty"`
	TimeStart      string    `json:"time_start,omitempty"`
	TimeEnd        string    `json:"time_end,omitempty"`
	RuntimeSeconds float64   `json:"runtime_seconds,omitempty"`
	ConfigHash     string    `json:"config_hash,omitempty"`
	ReconciledAt   string    `json:"reconciled_at,omitempty"`
}

// merge folds other's non-zero fields into e, matching
// recursively_update_dict's "new overwrites old, field by field" rule.
func (e Entry) merge(other Entry) Entry {
	if other.JobID != "" {
		e.JobID = other.JobID
	}
	if other.JobStatus != "" {
		e.JobStatus = other.JobStatus
	}
	if other.Hardware != "" {
		e.Hardware = other.Hardware
	}
	if other.QOS != "" {
		e.QOS = other.QOS
	}
	if other.OutFile != "" {
		e.OutFile = other.OutFile
	}
	if other.TimeSubmitted != "" {
		e.TimeSubmitted = other.TimeSubmitted
	}
	if other.TimeStart != "" {
		e.TimeStart = other.TimeStart
	}
	if other.TimeEnd != "" {
		e.TimeEnd = other.TimeEnd
	}
	if other.RuntimeSeconds != 0 {
		e.RuntimeSeconds = other.RuntimeSeconds
	}
	if other.ConfigHash != "" {
		e.ConfigHash = other.ConfigHash
	}
	if other.ReconciledAt != "" {
		e.ReconciledAt = other.ReconciledAt
	}
	return e
}

// stepStatus maps task tag -> entry.
type stepStatus map[string]Entry

// Snapshot is the full aggregated status record: step-alias -> tag ->
// entry.
type Snapshot map[string]stepStatus

// Store is the Status Store for one project directory. It keeps the
// aggregated snapshot in memory, backed by the per-job record files and
// the aggregate file on disk under <projectDir>/.gaps.
type Store struct {
	dir  string // <projectDir>/.gaps
	data Snapshot
}

// Open loads the aggregated snapshot for a project directory (creating
// the .gaps directory and an empty snapshot if none exists yet) and folds
// in any pending per-job record files.
func Open(ctx context.Context, projectDir string) (*Store, error) {
	s := &Store{dir: filepath.Join(projectDir, dirName), data: Snapshot{}}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, errkind.Runtimef("status.Open", projectDir, "creating status directory: %w", err)
	}
	if err := s.loadAggregate(); err != nil {
		return nil, err
	}
	if err := s.fold(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Refresh re-folds any per-job record files written since Open (or the
// last Refresh) into the in-memory snapshot. A task's own completion is
// self-reported from a different process than the one holding this
// Store — the self-invoking local subprocess or a SLURM compute-node job
// (internal/cli/entrypoint.go) — so a long-lived Store such as the one
// RunMonitor/RunBackground hold for an entire run only ever observes it
// by calling this.
func (s *Store) Refresh(ctx context.Context) error {
	return s.fold(ctx)
}

func (s *Store) aggregatePath() string { return filepath.Join(s.dir, aggregateFileName) }

func (s *Store) loadAggregate() error {
	data, err := os.ReadFile(s.aggregatePath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errkind.Runtimef("status.Open", s.aggregatePath(), "reading aggregate status file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return errkind.Runtimef("status.Open", s.aggregatePath(), "parsing aggregate status file: %w", err)
	}
	s.data = snap
	return nil
}

// recordFileName derives a per-job record file name for (step, tag), safe
// to create concurrently from many hosts since each task owns a distinct
// file.
func recordFileName(step, tag string) string {
	return fmt.Sprintf("job_%s_%s.json", step, sanitize(tag))
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, s)
}

// Record merges fields into the (step, tag) entry by writing a per-job
// record file (temp-file + atomic rename), matching the "write to
// temp + atomic rename of a per-job single-record file" rule. The
// in-memory snapshot is updated immediately so callers observe their own
// write without re-folding.
func (s *Store) Record(ctx context.Context, step, tag string, fields Entry) error {
	path := filepath.Join(s.dir, recordFileName(step, tag))
	payload := map[string]map[string]Entry{step: {tag: fields}}
	data, err := json.MarshalIndent(payload, "", "    ")
	if err != nil {
		return errkind.Runtimef("status.Record", path, "encoding record: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errkind.Runtimef("status.Record", path, "writing record: %w", err)
	}

	if s.data[step] == nil {
		s.data[step] = stepStatus{}
	}
	s.data[step][tag] = s.data[step][tag].merge(fields)
	ctxlog.FromContext(ctx).Debug("status: recorded", "step", step, "tag", tag, "status", fields.JobStatus)
	return nil
}

// fold reads every per-job record file in the status directory, merges it
// into the in-memory snapshot, removes the file, and writes the updated
// aggregate snapshot, matching
// gaps/status.py:Status.update_from_all_job_files.
func (s *Store) fold(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errkind.Runtimef("status.fold", s.dir, "listing status directory: %w", err)
	}

	folded := false
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "job_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var payload map[string]map[string]Entry
		if err := json.Unmarshal(data, &payload); err != nil {
			ctxlog.FromContext(ctx).Warn("status: skipping unreadable record file", "file", name, "err", err)
			continue
		}
		for step, tags := range payload {
			if s.data[step] == nil {
				s.data[step] = stepStatus{}
			}
			for tag, entry := range tags {
				s.data[step][tag] = s.data[step][tag].merge(entry)
			}
		}
		os.Remove(path)
		folded = true
	}

	if folded {
		return s.flushAggregate()
	}
	return nil
}

// flushAggregate writes the in-memory snapshot to the aggregate file,
// first copying the previous file to a backup and removing the backup
// only once the new write succeeds (gaps/status.py:Status.dump).
func (s *Store) flushAggregate() error {
	path := s.aggregatePath()
	backup := strings.TrimSuffix(path, ".json") + backupSuffix + ".json"

	if _, err := os.Stat(path); err == nil {
		if err := fsutil.CopyFile(path, backup); err != nil {
			return errkind.Runtimef("status.flushAggregate", path, "backing up previous status file: %w", err)
		}
	}

	data, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return errkind.Runtimef("status.flushAggregate", path, "encoding status snapshot: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return errkind.Runtimef("status.flushAggregate", path, "writing status snapshot: %w", err)
	}
	os.Remove(backup)
	return nil
}

// TrackRun wraps the execution of a task's own entry point on a cluster
// node: it records Running (with a start time) before calling fn, then
// Successful (with the returned output file path) or Failed, along with
// the elapsed runtime, matching gaps/status.py:StatusUpdates's
// context-manager protocol. Unlike the Dispatcher's Record calls (made
// from the submitting process), TrackRun is called from within the
// submitted task itself, which is why it writes through the same
// per-job atomic record file rather than assuming in-process access to
// the aggregated snapshot the submitter built.
func (s *Store) TrackRun(ctx context.Context, step, tag string, fn func() (outFile string, err error)) error {
	start := time.Now()
	if err := s.Record(ctx, step, tag, Entry{
		JobStatus: Running,
		TimeStart: start.Format(time.RFC3339),
	}); err != nil {
		return err
	}

	outFile, runErr := fn()

	end := time.Now()
	final := Entry{
		TimeEnd:        end.Format(time.RFC3339),
		RuntimeSeconds: end.Sub(start).Seconds(),
	}
	if runErr == nil {
		final.JobStatus = Successful
		final.OutFile = outFile
	} else {
		final.JobStatus = Failed
	}
	if err := s.Record(ctx, step, tag, final); err != nil {
		return err
	}
	return runErr
}

// JobQuerier is the subset of the Submission Backend the Status Store
// needs to reconcile submitted/running jobs against the scheduler queue.
// Defined here, rather than depending on the backend package, so the
// Store has no import-cycle risk; backend.Backend satisfies this
// interface structurally.
type JobQuerier interface {
	IsLive(ctx context.Context, jobID string) (bool, error)
}

// Reconcile queries the backend for every entry in state Submitted or
// Running; if the backend reports the job is no longer live and the
// entry's end time is unset, the entry transitions to Failed with a
// recorded reconciliation timestamp.
func (s *Store) Reconcile(ctx context.Context, backend JobQuerier, now time.Time) error {
	changed := false
	for step, tags := range s.data {
		for tag, e := range tags {
			if !e.JobStatus.IsProcessing() || e.JobID == "" {
				continue
			}
			live, err := backend.IsLive(ctx, e.JobID)
			if err != nil {
				return errkind.Reconciliationf("status.Reconcile", fmt.Sprintf("%s/%s", step, tag), "querying backend for job %s: %w", e.JobID, err)
			}
			if live || e.TimeEnd != "" {
				continue
			}
			e.JobStatus = Failed
			e.ReconciledAt = now.Format(time.RFC3339)
			tags[tag] = e
			changed = true
			ctxlog.FromContext(ctx).Warn("status: reconciled missing job to failed", "step", step, "tag", tag, "job_id", e.JobID)
		}
	}
	if changed {
		return s.flushAggregate()
	}
	return nil
}

// Get returns the entry for (step, tag), or the zero Entry in state
// NotSubmitted if there is none yet.
func (s *Store) Get(step, tag string) Entry {
	if tags, ok := s.data[step]; ok {
		if e, ok := tags[tag]; ok {
			return e
		}
	}
	return Entry{JobStatus: NotSubmitted}
}

// Tags returns the tags recorded for step, sorted.
func (s *Store) Tags(step string) []string {
	tags := make([]string, 0, len(s.data[step]))
	for tag := range s.data[step] {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Summary returns the aggregated view, optionally filtered to one step.
func (s *Store) Summary(step string) Snapshot {
	if step == "" {
		return s.data
	}
	out := Snapshot{}
	if tags, ok := s.data[step]; ok {
		out[step] = tags
	}
	return out
}

// Filter narrows a status summary to the named steps (all steps if Steps
// is empty) and the named job states (all states if States is empty),
// matching gaps/cli/status.py's `-s`/step-name status CLI filters.
type Filter struct {
	Steps  []string
	States []State
}

// Summarize applies f to the store's aggregated snapshot.
func (s *Store) Summarize(f Filter) Snapshot {
	stepSet := map[string]bool{}
	for _, st := range f.Steps {
		stepSet[st] = true
	}
	stateSet := map[State]bool{}
	for _, st := range f.States {
		stateSet[st] = true
	}

	out := Snapshot{}
	for step, tags := range s.data {
		if len(stepSet) > 0 && !stepSet[step] {
			continue
		}
		for tag, e := range tags {
			if len(stateSet) > 0 && !stateSet[e.JobStatus] {
				continue
			}
			if out[step] == nil {
				out[step] = stepStatus{}
			}
			out[step][tag] = e
		}
	}
	return out
}

// Reset transitions entries whose step appears at or after afterStepIndex
// within stepOrder back to NotSubmitted.
// Passing a negative afterStepIndex resets every step.
func (s *Store) Reset(ctx context.Context, stepOrder []string, afterStepIndex int) error {
	for i, step := range stepOrder {
		if afterStepIndex >= 0 && i < afterStepIndex {
			continue
		}
		tags, ok := s.data[step]
		if !ok {
			continue
		}
		for tag, e := range tags {
			e.JobStatus = NotSubmitted
			e.TimeStart, e.TimeEnd, e.JobID = "", "", ""
			tags[tag] = e
		}
	}
	ctxlog.FromContext(ctx).Info("status: reset", "from_step_index", afterStepIndex)
	return s.flushAggregate()
}

// Purge deletes the entire .gaps status directory for this project,
// backing the "--hard" reset mode.
func (s *Store) Purge() error {
	if err := os.RemoveAll(s.dir); err != nil {
		return errkind.Runtimef("status.Purge", s.dir, "%w", err)
	}
	return os.MkdirAll(s.dir, 0o755)
}

// RecordMonitorPID writes the detached background monitor's PID to the
// monitor PID file, matching gaps/status.py's MONITOR_PID_FILE mechanism.
func (s *Store) RecordMonitorPID(pid int) error {
	path := filepath.Join(s.dir, monitorPIDFileName)
	data, err := json.Marshal(map[string]int{"monitor_pid": pid})
	if err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(path, data, 0o644)
}

// MonitorPID returns the recorded monitor PID and whether a process with
// that PID is still alive. ok=false means no monitor is currently
// recorded as live.
func (s *Store) MonitorPID() (pid int, ok bool) {
	path := filepath.Join(s.dir, monitorPIDFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	var payload map[string]int
	if err := json.Unmarshal(data, &payload); err != nil {
		return 0, false
	}
	pid, ok = payload["monitor_pid"]
	if !ok {
		return 0, false
	}
	return pid, processAlive(pid)
}

// ClearMonitorPID removes the monitor PID file, called by
// pipeline.Executor.RunBackground when its monitor loop returns.
func (s *Store) ClearMonitorPID() error {
	return os.Remove(filepath.Join(s.dir, monitorPIDFileName))
}

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// On POSIX, FindProcess always succeeds; signal 0 probes existence
	// without affecting the process.
	return proc.Signal(syscall.Signal(0)) == nil
}

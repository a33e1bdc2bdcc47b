// Package backend implements the Submission Backend: a
// polymorphic interface over cluster schedulers and local subprocess
// execution, grounded on gaps/hpc.py's HpcJobManager/SLURM classes. The
// closed tagged union of variants is an explicit Go interface rather than
// a file-naming convention.
package backend

import (
	"context"
)

// Resources is the subset of an execution_control block a Backend needs
// to submit a job.
type Resources struct {
	Allocation  string
	WalltimeHrs float64
	QOS         string
	MemoryGB    float64
	Feature     string
	CondaEnv    string
	Module      string
	ShScript    string
	Queue       string
}

// SubmitSpec is one job's submission request: a job name, the shell
// command to run, and the resources to request.
type SubmitSpec struct {
	JobName      string
	Command      string
	WorkDir      string
	StdoutPath   string
	Resources    Resources
}

// SubmitResult identifies the submitted job.
type SubmitResult struct {
	JobID string
}

// Backend is the uniform interface over scheduler variants.
// Every variant supports submit/query/cancel.
type Backend interface {
	// Name identifies the backend variant ("local", "slurm", ...), used
	// as the Status Record's "hardware" field.
	Name() string
	// Submit launches spec.Command under the requested Resources and
	// returns a scheduler-assigned job id.
	Submit(ctx context.Context, spec SubmitSpec) (SubmitResult, error)
	// IsLive reports whether jobID is still queued or running. It
	// satisfies status.JobQuerier.
	IsLive(ctx context.Context, jobID string) (bool, error)
	// Cancel requests cancellation of jobID.
	Cancel(ctx context.Context, jobID string) error
	// Cleanup removes any submission artifact Submit wrote on disk for
	// jobName in workDir, once the job has reached a terminal state. The
	// Submission Backend owns the file it writes; variants that write no
	// artifact (e.g. Local) treat this as a no-op. Idempotent: safe to
	// call on a job whose artifact is already gone.
	Cleanup(jobName, workDir string) error
	// Script renders the submission artifact Submit would hand to the
	// scheduler, without submitting it. Backs the "script" CLI command's
	// dry preview.
	Script(spec SubmitSpec) (string, error)
	// ChargeFactor returns the AU charge-factor (compute-unit cost
	// multiplier per node-hour) for this hardware, grounded on
	// gaps/status.py:HardwareOption.charge_factor. 0 means "not tracked"
	// (e.g. the local backend).
	ChargeFactor() int
}

// ByName constructs the Backend variant for a given execution_control
// "option" value.
func ByName(name string) (Backend, error) {
	switch name {
	case "", "local":
		return NewLocal(), nil
	case "slurm", "kestrel", "eagle", "awspc":
		return NewSLURM(name), nil
	default:
		return nil, &UnknownVariantError{Name: name}
	}
}

// UnknownVariantError reports an execution_control.option naming a
// backend variant this driver does not implement.
type UnknownVariantError struct{ Name string }

func (e *UnknownVariantError) Error() string {
	return "backend: unknown submission backend variant " + e.Name
}

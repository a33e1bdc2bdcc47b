package backend

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeRunner struct {
	calls []string
	out   map[string]string
	err   map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	if err, ok := f.err[name]; ok {
		return "", err
	}
	return f.out[name], nil
}

func TestSLURMSubmitParsesJobID(t *testing.T) {
	s := NewSLURM("slurm")
	runner := &fakeRunner{out: map[string]string{"sbatch": "Submitted batch job 98765\n"}}
	s.run = runner

	res, err := s.Submit(context.Background(), SubmitSpec{
		JobName:    "gen_j0",
		Command:    "ridge generate -c task.json",
		WorkDir:    t.TempDir(),
		StdoutPath: "/tmp",
		Resources:  Resources{Allocation: "myalloc", WalltimeHrs: 1.5, QOS: "normal"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.JobID != "98765" {
		t.Fatalf("JobID = %q, want 98765", res.JobID)
	}
}

func TestSLURMSubmitPropagatesSbatchError(t *testing.T) {
	s := NewSLURM("slurm")
	s.run = &fakeRunner{err: map[string]error{"sbatch": fmt.Errorf("connection refused")}}

	if _, err := s.Submit(context.Background(), SubmitSpec{JobName: "x", WorkDir: t.TempDir()}); err == nil {
		t.Fatal("expected error when sbatch fails")
	}
}

func TestSLURMIsLive(t *testing.T) {
	s := NewSLURM("slurm")
	s.run = &fakeRunner{out: map[string]string{"squeue": "  98765 debug gen_j0 user PD 0:00 (None)\n"}}

	live, err := s.IsLive(context.Background(), "98765")
	if err != nil {
		t.Fatal(err)
	}
	if !live {
		t.Fatal("expected job with nonempty squeue output to be live")
	}
}

func TestSLURMIsLiveEmptyQueueMeansGone(t *testing.T) {
	s := NewSLURM("slurm")
	s.run = &fakeRunner{out: map[string]string{"squeue": ""}}

	live, err := s.IsLive(context.Background(), "98765")
	if err != nil || live {
		t.Fatalf("IsLive() = %v, %v, want false, nil", live, err)
	}
}

func TestSLURMChargeFactorByHardware(t *testing.T) {
	if NewSLURM("kestrel").ChargeFactor() != 10 {
		t.Fatal("expected kestrel charge factor 10")
	}
	if NewSLURM("eagle").ChargeFactor() != 3 {
		t.Fatal("expected eagle charge factor 3")
	}
}

func TestSLURMSubmitWritesScriptAndCleanupRemovesIt(t *testing.T) {
	s := NewSLURM("slurm")
	s.run = &fakeRunner{out: map[string]string{"sbatch": "Submitted batch job 1\n"}}
	dir := t.TempDir()

	if _, err := s.Submit(context.Background(), SubmitSpec{JobName: "gen_j0", WorkDir: dir}); err != nil {
		t.Fatal(err)
	}

	scriptPath := filepath.Join(dir, "gen_j0.sh")
	if _, err := os.Stat(scriptPath); err != nil {
		t.Fatalf("expected submission script to exist after Submit: %v", err)
	}

	if err := s.Cleanup("gen_j0", dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(scriptPath); !os.IsNotExist(err) {
		t.Fatalf("expected Cleanup to remove the submission script, stat err = %v", err)
	}
}

func TestSLURMCleanupOnMissingScriptIsNotAnError(t *testing.T) {
	s := NewSLURM("slurm")
	if err := s.Cleanup("never-submitted", t.TempDir()); err != nil {
		t.Fatalf("Cleanup() on a nonexistent script should be a no-op, got %v", err)
	}
}

func TestRenderScriptIncludesRequestedResources(t *testing.T) {
	s := NewSLURM("slurm")
	script, err := s.renderScript(SubmitSpec{
		JobName:    "gen_j0",
		Command:    "ridge generate -c task.json",
		WorkDir:    "/proj",
		StdoutPath: "/proj/logs",
		Resources: Resources{
			Allocation:  "myalloc",
			WalltimeHrs: 2,
			QOS:         "high",
			MemoryGB:    4,
			CondaEnv:    "ridge-env",
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"#SBATCH --account=myalloc",
		"#SBATCH --time=2:00:00",
		"#SBATCH --qos=high",
		"#SBATCH --mem=4000",
		"source activate ridge-env",
		"cd /proj",
		"ridge generate -c task.json",
	} {
		if !strings.Contains(script, want) {
			t.Fatalf("script missing %q:\n%s", want, script)
		}
	}
}

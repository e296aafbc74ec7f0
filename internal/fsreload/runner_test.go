package fsreload

import (
	"context"
	"os/exec"
	"testing"
	"time"
)

func TestExecRunnerBoundedWhenChildHoldsOutput(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := ExecRunner{WaitDelay: 200 * time.Millisecond}.Run(ctx, "sh", "-c", "sleep 10 & sleep 10")
	if err == nil {
		t.Fatal("expected an error from the killed command")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Fatalf("Run returned after %s", elapsed)
	}
}

func TestExecRunnerOutput(t *testing.T) {
	t.Parallel()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}

	out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "echo +OK")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if string(out) != "+OK\n" {
		t.Fatalf("output = %q", out)
	}
}

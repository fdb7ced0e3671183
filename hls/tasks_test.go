package hls

import "testing"

func TestTaskStatusString(t *testing.T) {
	cases := map[TaskStatus]string{
		Pending: "pending", RunningStatus: "running", Completed: "completed",
		Failed: "failed", Cancelled: "cancelled", TaskStatus(99): "unknown",
	}
	for status, want := range cases {
		if got := status.String(); got != want {
			t.Errorf("TaskStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}

func TestExecutionSummarySuccessRate(t *testing.T) {
	s := ExecutionSummary{Total: 4, Completed: 3, Failed: 1}
	if got := s.SuccessRate(); got != 75.0 {
		t.Fatalf("SuccessRate = %v, want 75.0", got)
	}
	if got := (ExecutionSummary{}).SuccessRate(); got != 0 {
		t.Fatalf("SuccessRate for empty summary = %v, want 0", got)
	}
}

func TestExecutionSummaryHasFailures(t *testing.T) {
	if (ExecutionSummary{Total: 2, Completed: 2}).HasFailures() {
		t.Fatal("an all-completed summary must not report failures")
	}
	if !(ExecutionSummary{Total: 2, Completed: 1, Failed: 1}).HasFailures() {
		t.Fatal("a summary with a failed task must report failures")
	}
	if !(ExecutionSummary{Total: 2, Completed: 1, Cancelled: 1}).HasFailures() {
		t.Fatal("a summary with a cancelled task must report failures")
	}
}

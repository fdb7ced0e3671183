package hls

import "time"

// TaskStatus is the lifecycle state of one task, written only by the
// worker executing it (single-writer invariant).
type TaskStatus int

const (
	Pending TaskStatus = iota
	RunningStatus
	Completed
	Failed
	Cancelled
)

func (s TaskStatus) String() string {
	switch s {
	case Pending:
		return "pending"
	case RunningStatus:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TaskType tags which concrete task payload a Task carries.
type TaskType int

const (
	VideoTaskType TaskType = iota
	AudioTaskType
	SubtitleTaskType
	SpriteTaskType
)

// TaskBase holds the fields common to every task, mirroring the shared
// Status/Progress/timestamps contract every task type in the plan carries.
type TaskBase struct {
	ID          string
	Type        TaskType
	SourcePath  string
	OutputDir   string
	Status      TaskStatus
	Progress    float64
	Speed       float64
	ErrorMsg    string
	StartedAt   time.Time
	CompletedAt time.Time
	RetryCount  int
}

// VideoTask is one video-variant encode.
type VideoTask struct {
	TaskBase
	Quality     QualityLabel
	Width       int
	Height      int
	BitrateKbps int
	MaxrateKbps int
	BufsizeKbps int
	Encoder     string
	StreamIndex int
	FPS         float64
}

// AudioTask is one audio-track encode.
type AudioTask struct {
	TaskBase
	Language    string
	StreamIndex int
	Codec       string
	BitrateKbps int
	Channels    int
	SampleRate  int
	StreamCopy  bool
}

// SubtitleTask is one subtitle extraction.
type SubtitleTask struct {
	TaskBase
	Language    string
	StreamIndex int
	Forced      bool
	SourceCodec string
}

// SpriteTask generates the thumbnail sprite sheet(s) and VTT cue index.
type SpriteTask struct {
	TaskBase
	IntervalS float64
	TileW     int
	TileH     int
	Columns   int
	Rows      int
	Quality   int
}

// TaskPlan is the full set of tasks for one run plus aggregate estimates.
// All tasks reference the same source path.
type TaskPlan struct {
	SourcePath   string
	VideoTasks   []*VideoTask
	AudioTasks   []*AudioTask
	SubtitleTasks []*SubtitleTask
	SpriteTask   *SpriteTask
	Estimate     ResourceEstimate
	Strategy     ExecutionStrategy
}

// ResourceEstimate approximates the cost of running a TaskPlan.
type ResourceEstimate struct {
	DurationSeconds float64
	OutputBytes     int64
	PeakMemoryMB    float64
	DiskNeededBytes int64
	CPUCores        int
	GPUMemoryMB     int
}

// ExecutionStrategy is the concurrency plan the planner derives; all
// concurrency values are clamped to at least 1.
type ExecutionStrategy struct {
	VideoConcurrency      int
	AudioConcurrency      int
	SubtitleConcurrency   int
	SpriteSeparate        bool
	MaxTotalConcurrent    int
}

// ExecutionResult is the outcome of one task.
type ExecutionResult struct {
	TaskID          string
	Success         bool
	OutputPath      string
	Error           error
	DurationSeconds float64
}

// ExecutionSummary aggregates the outcome of an entire run, preserving the
// insertion order of results (the order tasks reached a terminal state).
type ExecutionSummary struct {
	Total     int
	Completed int
	Failed    int
	Cancelled int
	TotalDurationSeconds float64
	Results   []ExecutionResult
}

// SuccessRate is 100*completed/total, or 0 for an empty plan.
func (s ExecutionSummary) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Completed) / float64(s.Total)
}

// HasFailures reports whether any task failed or was cancelled.
func (s ExecutionSummary) HasFailures() bool {
	return s.Failed > 0 || s.Cancelled > 0
}

package hls

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
)

// semaphore is a plain buffered-channel counting semaphore: acquiring
// blocks until a permit is free, release returns it. This is the pack's
// standard concurrency-limiting idiom — no golang.org/x/sync dependency is
// exercised anywhere in the corpus this pipeline is grounded on.
type semaphore chan struct{}

func newSemaphore(capacity int) semaphore {
	if capacity < 1 {
		capacity = 1
	}
	return make(semaphore, capacity)
}

func (s semaphore) acquire() { s <- struct{}{} }
func (s semaphore) release() { <-s }

// ProgressCallback is invoked after every task reaches a terminal state,
// with the running completed-count and total.
type ProgressCallback func(completed, total int)

// Executor runs a TaskPlan's tasks under per-class concurrency limits,
// collecting results in the order tasks reach a terminal state.
type Executor struct {
	videoWorker    *VideoWorker
	audioWorker    *AudioWorker
	subtitleWorker *SubtitleWorker
	spriteWorker   *SpriteWorker
	logger         hclog.Logger
	metrics        *Metrics

	cancelled int32

	mu            sync.Mutex
	results       []ExecutionResult
	cancelledCount int
}

// NewExecutor constructs an Executor from its per-class workers.
func NewExecutor(video *VideoWorker, audio *AudioWorker, subtitle *SubtitleWorker, sprite *SpriteWorker, metrics *Metrics, logger hclog.Logger) *Executor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Executor{
		videoWorker:    video,
		audioWorker:    audio,
		subtitleWorker: subtitle,
		spriteWorker:   sprite,
		metrics:        metrics,
		logger:         logger.Named("executor"),
	}
}

// Cancel marks the executor cancelled: any task not yet dispatched from
// PENDING is recorded as a cancelled failure without spawning a child.
// Running tasks are not killed by Cancel.
func (e *Executor) Cancel() {
	atomic.StoreInt32(&e.cancelled, 1)
}

func (e *Executor) isCancelled() bool {
	return atomic.LoadInt32(&e.cancelled) != 0
}

// Execute runs plan's tasks under strategy's concurrency limits and
// returns an ExecutionSummary, durationSec is the source duration used for
// the sprite worker's VTT timing.
func (e *Executor) Execute(plan *TaskPlan, durationSec float64, hw *HardwareInfo, cfg *Config, outputRoot string, onProgress ProgressCallback) ExecutionSummary {
	total := len(plan.VideoTasks) + len(plan.AudioTasks) + len(plan.SubtitleTasks)
	if plan.SpriteTask != nil {
		total++
	}

	var completedCount int32
	progress := func() {
		c := int(atomic.AddInt32(&completedCount, 1))
		if onProgress != nil {
			onProgress(c, total)
		}
	}

	videoSem := newSemaphore(plan.Strategy.VideoConcurrency)
	audioSem := newSemaphore(plan.Strategy.AudioConcurrency)
	subtitleSem := newSemaphore(plan.Strategy.SubtitleConcurrency)

	var wg sync.WaitGroup
	start := time.Now()

	for _, task := range plan.VideoTasks {
		wg.Add(1)
		go func(task *VideoTask) {
			defer wg.Done()
			videoSem.acquire()
			defer videoSem.release()
			e.runVideo(task, hw, cfg.HLS, outputRoot)
			progress()
		}(task)
	}

	for _, task := range plan.AudioTasks {
		wg.Add(1)
		go func(task *AudioTask) {
			defer wg.Done()
			audioSem.acquire()
			defer audioSem.release()
			e.runAudio(task, cfg.Audio, outputRoot)
			progress()
		}(task)
	}

	for _, task := range plan.SubtitleTasks {
		wg.Add(1)
		go func(task *SubtitleTask) {
			defer wg.Done()
			subtitleSem.acquire()
			defer subtitleSem.release()
			e.runSubtitle(task, outputRoot)
			progress()
		}(task)
	}

	if plan.SpriteTask != nil && !plan.Strategy.SpriteSeparate {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.runSprite(plan.SpriteTask, durationSec, outputRoot)
			progress()
		}()
	}

	wg.Wait()

	if plan.SpriteTask != nil && plan.Strategy.SpriteSeparate {
		e.runSprite(plan.SpriteTask, durationSec, outputRoot)
		progress()
	}

	return e.summarize(total, time.Since(start).Seconds())
}

func (e *Executor) record(res ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = append(e.results, res)
}

func (e *Executor) runVideo(task *VideoTask, hw *HardwareInfo, settings HLSSettings, outputRoot string) {
	if e.isCancelled() {
		e.finishCancelled(&task.TaskBase)
		return
	}

	task.Status = RunningStatus
	task.StartedAt = time.Now()
	if e.metrics != nil {
		e.metrics.TaskStarted("video")
	}

	out, err := e.videoWorker.Run(task, hw, settings, outputRoot)
	e.finish(&task.TaskBase, out, err, "video")
}

func (e *Executor) runAudio(task *AudioTask, audio AudioSettings, outputRoot string) {
	if e.isCancelled() {
		e.finishCancelled(&task.TaskBase)
		return
	}

	task.Status = RunningStatus
	task.StartedAt = time.Now()
	if e.metrics != nil {
		e.metrics.TaskStarted("audio")
	}

	out, err := e.audioWorker.Run(task, audio, outputRoot)
	e.finish(&task.TaskBase, out, err, "audio")
}

func (e *Executor) runSubtitle(task *SubtitleTask, outputRoot string) {
	if e.isCancelled() {
		e.finishCancelled(&task.TaskBase)
		return
	}

	task.Status = RunningStatus
	task.StartedAt = time.Now()
	if e.metrics != nil {
		e.metrics.TaskStarted("subtitle")
	}

	out, err := e.subtitleWorker.Run(task, "webvtt", outputRoot)
	e.finish(&task.TaskBase, out, err, "subtitle")
}

func (e *Executor) runSprite(task *SpriteTask, durationSec float64, outputRoot string) {
	if e.isCancelled() {
		e.finishCancelled(&task.TaskBase)
		return
	}

	task.Status = RunningStatus
	task.StartedAt = time.Now()
	if e.metrics != nil {
		e.metrics.TaskStarted("sprite")
	}

	out, err := e.spriteWorker.Run(task, durationSec, filepath.Clean(outputRoot))
	e.finish(&task.TaskBase, out, err, "sprite")
}

func (e *Executor) finish(base *TaskBase, outputPath string, err error, class string) {
	base.CompletedAt = time.Now()
	duration := base.CompletedAt.Sub(base.StartedAt).Seconds()

	if err != nil {
		base.Status = Failed
		base.ErrorMsg = err.Error()
		if e.metrics != nil {
			e.metrics.TaskFailed(class)
		}
		e.record(ExecutionResult{TaskID: base.ID, Success: false, Error: err, DurationSeconds: duration})
		return
	}

	base.Status = Completed
	base.Progress = 1.0
	if e.metrics != nil {
		e.metrics.TaskCompleted(class, duration)
	}
	e.record(ExecutionResult{TaskID: base.ID, Success: true, OutputPath: outputPath, DurationSeconds: duration})
}

func (e *Executor) finishCancelled(base *TaskBase) {
	base.Status = Cancelled
	result := ExecutionResult{TaskID: base.ID, Success: false, Error: newError(NonRetryableKind, "cancelled before dispatch")}

	e.mu.Lock()
	e.results = append(e.results, result)
	e.cancelledCount++
	e.mu.Unlock()
}

func (e *Executor) summarize(total int, totalDuration float64) ExecutionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summary := ExecutionSummary{Total: total, TotalDurationSeconds: totalDuration, Results: append([]ExecutionResult(nil), e.results...)}
	summary.Cancelled = e.cancelledCount
	for _, r := range summary.Results {
		if r.Success {
			summary.Completed++
		} else if !IsKind(r.Error, NonRetryableKind) {
			summary.Failed++
		}
	}
	return summary
}

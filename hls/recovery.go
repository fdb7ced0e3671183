package hls

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/shirou/gopsutil/v4/mem"
)

// RecoveryStrategy tags how a RecoveryResult's value was ultimately
// obtained.
type RecoveryStrategy int

const (
	StrategyDirect RecoveryStrategy = iota
	StrategyRetry
	StrategyFallback
)

func (s RecoveryStrategy) String() string {
	switch s {
	case StrategyDirect:
		return "direct"
	case StrategyRetry:
		return "retry"
	case StrategyFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// RecoveryAttempt records the outcome of one attempt at the wrapped
// operation.
type RecoveryAttempt struct {
	Number   int
	Error    error
	Duration time.Duration
	TimedOut bool
}

// RecoveryResult is the outcome of execute_with_recovery: either a value
// with StrategyUsed set, or an error with every attempt recorded.
type RecoveryResult struct {
	Success      bool
	Value        interface{}
	Error        error
	Attempts     []RecoveryAttempt
	StrategyUsed RecoveryStrategy
	TotalDuration time.Duration
}

// RecoveryConfig controls the retry/backoff/fallback policy.
type RecoveryConfig struct {
	MaxRetries              int
	Delay                   time.Duration
	BackoffMultiplier       float64
	MaxRetryDelay           time.Duration
	UseBackoff              bool
	OperationTimeout        time.Duration
	HardwareFallbackEnabled bool
	CleanupOnFailure        bool
}

// RecoveryStats is the in-memory aggregate the recovery helper keeps across
// calls, for reporting success rate and how often retry/fallback rescued a
// failing operation.
type RecoveryStats struct {
	Total          int
	Succeeded      int
	RetrySaved     int
	FallbackSaved  int
}

// SuccessRate is 100*succeeded/total, or 0 for no recorded calls.
func (s RecoveryStats) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return 100 * float64(s.Succeeded) / float64(s.Total)
}

// RecoveryOperation is the operation execute_with_recovery wraps. It should
// honor the supplied timeout itself (e.g. by passing it through to the
// subprocess driver) and return a NonRetryableKind *Error to short-circuit
// retries.
type RecoveryOperation func(timeout time.Duration) (interface{}, error)

// Recoverer runs operations under a shared retry/backoff/fallback policy
// and keeps aggregate statistics across every call it makes.
type Recoverer struct {
	logger hclog.Logger

	stats RecoveryStats
}

func NewRecoverer(logger hclog.Logger) *Recoverer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Recoverer{logger: logger.Named("recovery")}
}

// Stats returns a snapshot of the aggregate statistics recorded so far.
func (r *Recoverer) Stats() RecoveryStats {
	return r.stats
}

// Execute runs op under cfg's retry policy, falling back to fallback once
// if every retry is exhausted and hardware fallback is enabled, then
// running cleanup on final failure if configured.
func (r *Recoverer) Execute(op RecoveryOperation, fallback RecoveryOperation, cleanup func(), cfg RecoveryConfig) RecoveryResult {
	start := time.Now()
	r.stats.Total++

	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	var attempts []RecoveryAttempt
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		attemptStart := time.Now()
		value, err := op(cfg.OperationTimeout)
		duration := time.Since(attemptStart)

		timedOut := IsKind(err, TimeoutKind)
		attempts = append(attempts, RecoveryAttempt{Number: attempt, Error: err, Duration: duration, TimedOut: timedOut})

		if err == nil {
			strategy := StrategyDirect
			if attempt > 1 {
				strategy = StrategyRetry
				r.stats.RetrySaved++
			}
			r.stats.Succeeded++
			return RecoveryResult{Success: true, Value: value, Attempts: attempts, StrategyUsed: strategy, TotalDuration: time.Since(start)}
		}

		lastErr = err

		if IsKind(err, NonRetryableKind) {
			r.logger.Debug("non-retryable error, stopping retries", "attempt", attempt, "error", err)
			break
		}

		if attempt == maxRetries {
			break
		}

		r.sleepBeforeRetry(attempt, cfg)
	}

	if fallback != nil && cfg.HardwareFallbackEnabled {
		r.logAvailableMemory()

		attemptStart := time.Now()
		value, err := fallback(cfg.OperationTimeout)
		duration := time.Since(attemptStart)
		attempts = append(attempts, RecoveryAttempt{Number: len(attempts) + 1, Error: err, Duration: duration})

		if err == nil {
			r.stats.Succeeded++
			r.stats.FallbackSaved++
			return RecoveryResult{Success: true, Value: value, Attempts: attempts, StrategyUsed: StrategyFallback, TotalDuration: time.Since(start)}
		}
		lastErr = err
	}

	if cfg.CleanupOnFailure && cleanup != nil {
		r.runCleanup(cleanup)
	}

	return RecoveryResult{Success: false, Error: lastErr, Attempts: attempts, TotalDuration: time.Since(start)}
}

// sleepBeforeRetry sleeps for the exponential-backoff (or fixed) delay for
// the attempt just completed, capped at cfg.MaxRetryDelay.
func (r *Recoverer) sleepBeforeRetry(attempt int, cfg RecoveryConfig) {
	delay := cfg.Delay
	if cfg.UseBackoff {
		multiplier := cfg.BackoffMultiplier
		if multiplier <= 0 {
			multiplier = 2.0
		}
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * multiplier)
		}
	}
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	if delay > 0 {
		time.Sleep(delay)
	}
}

// logAvailableMemory surfaces current memory pressure before a fallback
// runs, so an operator reading logs can tell a software-encode fallback
// apart from "we were out of RAM anyway".
func (r *Recoverer) logAvailableMemory() {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return
	}
	r.logger.Info("falling back", "mem_used_percent", vm.UsedPercent, "mem_available_mb", vm.Available/1024/1024)
}

func (r *Recoverer) runCleanup(cleanup func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("cleanup closure panicked", "recover", rec)
		}
	}()
	cleanup()
}

package jobcontext

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
)

type KeyContext string

var (
	keyJobID        KeyContext = "job_id"
	keyJobType      KeyContext = "job_type"
	keyJobStartTime KeyContext = "job_start_time"
)

// JobMetadata holds metadata for a job execution
type JobMetadata struct {
	JobID     uuid.UUID
	JobType   string
	StartTime time.Time
}

// JobBegin derives a job context with metadata and a hard timeout.
// Every blocking engine call made under it inherits the deadline.
func JobBegin(parentCtx context.Context, jobID uuid.UUID, jobType string, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(parentCtx, timeout)

	ctx = context.WithValue(ctx, keyJobID, jobID)
	ctx = context.WithValue(ctx, keyJobType, jobType)
	ctx = context.WithValue(ctx, keyJobStartTime, time.Now())

	return ctx, cancel
}

// GetJobID extracts job ID from context
func GetJobID(ctx context.Context) (uuid.UUID, bool) {
	jobID, ok := ctx.Value(keyJobID).(uuid.UUID)
	return jobID, ok
}

// GetJobType extracts job type from context
func GetJobType(ctx context.Context) (string, bool) {
	jobType, ok := ctx.Value(keyJobType).(string)
	return jobType, ok
}

// GetJobStartTime extracts job start time from context
func GetJobStartTime(ctx context.Context) (time.Time, bool) {
	startTime, ok := ctx.Value(keyJobStartTime).(time.Time)
	return startTime, ok
}

// GetJobMetadata extracts all job metadata from context
func GetJobMetadata(ctx context.Context) *JobMetadata {
	jobID, _ := GetJobID(ctx)
	jobType, _ := GetJobType(ctx)
	startTime, _ := GetJobStartTime(ctx)

	return &JobMetadata{
		JobID:     jobID,
		JobType:   jobType,
		StartTime: startTime,
	}
}

// Elapsed returns how long the job has been running, zero outside a job
func Elapsed(ctx context.Context) time.Duration {
	start, ok := GetJobStartTime(ctx)
	if !ok {
		return 0
	}
	return time.Since(start)
}

// StatusError is returned by engine clients for non-2xx responses
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s returned status %d: %s", e.Service, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s returned status %d", e.Service, e.StatusCode)
}

// IsRetryableError checks if an error should trigger a retry
// Retryable errors include: network errors, timeouts, rate limits, 5xx
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// The caller gave up; retrying cannot help
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Network errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "network unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "eof") {
		return true
	}

	// Temporary failures
	if strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "try again") {
		return true
	}

	return false
}

// RetryPolicy shapes an exponential backoff schedule
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxRetries      uint64
}

// DefaultRetryPolicy is used by the engine clients
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     5 * time.Second,
	MaxElapsedTime:  30 * time.Second,
	MaxRetries:      3,
}

// NewBackOff builds the backoff described by the policy, bound to ctx
func (p RetryPolicy) NewBackOff(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	}
	bo.MaxElapsedTime = p.MaxElapsedTime

	var b backoff.BackOff = bo
	if p.MaxRetries > 0 {
		b = backoff.WithMaxRetries(b, p.MaxRetries)
	}
	return backoff.WithContext(b, ctx)
}

// Retry runs op until it succeeds, fails with a non-retryable error, or the
// policy gives up. Non-retryable errors are returned unwrapped.
func Retry(ctx context.Context, policy RetryPolicy, op func() error) error {
	return backoff.Retry(func() error {
		err := op()
		if err != nil && !IsRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy.NewBackOff(ctx))
}

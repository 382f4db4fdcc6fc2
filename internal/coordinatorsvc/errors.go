package coordinatorsvc

import (
	"fmt"

	"github.com/likealocal/tips-pipeline/internal/gateway"
)

// Sentinel error kinds from the error taxonomy (§7). Checked via errors.Is,
// never string-matched.
var (
	// ErrWorkerUnavailable: wake/probe exhausted without the worker
	// becoming ready. Fatal for the run.
	ErrWorkerUnavailable = fmt.Errorf("worker unavailable")

	// ErrPipelineAborted wraps ErrWorkerUnavailable (or another fatal
	// cause) as the run-level outcome cmd/coordinator maps to a non-zero
	// exit code.
	ErrPipelineAborted = fmt.Errorf("pipeline aborted")

	// ErrCancelledByOperator: a shutdown signal interrupted the run.
	ErrCancelledByOperator = fmt.Errorf("cancelled by operator")

	// ErrPersistenceConflict and ErrPersistenceTransient originate in the
	// gateway, the layer that actually talks to Postgres/Weaviate and
	// classifies their errors; aliased here so the full taxonomy reads from
	// one place. ErrPersistenceTransient is already retried locally by the
	// gateway (3 attempts, 100ms backoff) before it ever reaches this
	// package — by the time a caller here sees it, retries are exhausted.
	ErrPersistenceConflict  = gateway.ErrPersistenceConflict
	ErrPersistenceTransient = gateway.ErrPersistenceTransient
)

// BatchTransportError wraps a batch-dispatch failure (transport error or
// 5xx) that survived every retry attempt.
type BatchTransportError struct {
	BatchIndex int
	Attempts   int
	Cause      error
}

func (e *BatchTransportError) Error() string {
	return fmt.Sprintf("batch %d: transport error after %d attempts: %v", e.BatchIndex, e.Attempts, e.Cause)
}

func (e *BatchTransportError) Unwrap() error { return e.Cause }

// ItemProcessingError records a per-item failure reported inside an
// otherwise-successful batch response (§7: "recorded via record_failure;
// not retried in the current run").
type ItemProcessingError struct {
	TipID  int64
	Reason string
}

func (e *ItemProcessingError) Error() string {
	return fmt.Sprintf("tip %d: %s", e.TipID, e.Reason)
}

package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrPersistenceConflict marks a uniqueness violation on an upsert; an
// idempotent upsert path that sees it can treat the row as already present.
var ErrPersistenceConflict = errors.New("persistence conflict")

// ErrPersistenceTransient marks a DB error worth retrying locally: a
// dropped connection, a serialization failure, or a deadlock abort (§7).
var ErrPersistenceTransient = errors.New("persistence transient error")

// classifyErr wraps err with ErrPersistenceConflict or ErrPersistenceTransient
// when it is recognized as one, so callers branch with errors.Is instead of
// matching driver-specific types. Unrecognized errors pass through unchanged.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrPersistenceConflict, err)
		case "40001", // serialization_failure
			"40P01",                     // deadlock_detected
			"08000", "08003", "08006", "08001", "08004": // connection exceptions
			return fmt.Errorf("%w: %s", ErrPersistenceTransient, err)
		}
	}
	if isTransientNetworkErr(err) {
		return fmt.Errorf("%w: %s", ErrPersistenceTransient, err)
	}
	return err
}

// isTransientNetworkErr catches the store-agnostic transport failures
// (Weaviate has no SQLSTATE-style code to classify by) that are worth
// retrying the same way a dropped Postgres connection is.
func isTransientNetworkErr(err error) bool {
	msg := err.Error()
	for _, substr := range []string{"connection reset", "broken pipe", "connection refused", "i/o timeout", "EOF"} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

const (
	transientRetryAttempts = 3
	transientRetryBackoff  = 100 * time.Millisecond
)

// withTransientRetry runs fn up to transientRetryAttempts times in total
// (the first call plus at most two retries), pausing transientRetryBackoff
// between attempts, for as long as the classified error is
// ErrPersistenceTransient (§7 PersistenceTransient); the last error then
// surfaces as a run failure.
func withTransientRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= transientRetryAttempts; attempt++ {
		err = classifyErr(fn())
		if err == nil || !errors.Is(err, ErrPersistenceTransient) {
			return err
		}
		if attempt < transientRetryAttempts {
			time.Sleep(transientRetryBackoff)
		}
	}
	return err
}

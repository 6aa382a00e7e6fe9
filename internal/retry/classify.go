package retry

import (
	"time"

	"github.com/nao1215/odindexer/internal/model"
)

// Kind is the outcome of one attempt.
type Kind int

const (
	// KindOK means the attempt succeeded.
	KindOK Kind = iota
	// KindRateLimited means the backend asked us to slow down.
	KindRateLimited
	// KindTransient means the attempt may succeed if repeated.
	KindTransient
	// KindFatal means repeating the attempt is pointless.
	KindFatal
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindRateLimited:
		return "rate-limited"
	case KindTransient:
		return "transient"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps an error to a Kind.
// Backend errors carry their own kind. Everything else, including request
// timeouts (context.DeadlineExceeded) and network errors, is transient.
func Classify(err error) Kind {
	if err == nil {
		return KindOK
	}

	be, ok := model.AsBackendError(err)
	if !ok {
		return KindTransient
	}
	switch be.Kind {
	case model.KindRateLimited:
		return KindRateLimited
	case model.KindFatal:
		return KindFatal
	default:
		return KindTransient
	}
}

// retryAfter returns the cooldown requested by a rate-limited error.
func retryAfter(err error) (time.Duration, bool) {
	be, ok := model.AsBackendError(err)
	if !ok || be.RetryAfter <= 0 {
		return 0, false
	}
	return be.RetryAfter, true
}

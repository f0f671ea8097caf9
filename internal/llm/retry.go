package llm

import (
	"github.com/agentcore/agentcore/internal/retry"
)

// RetryPolicy carries the shared backoff configuration used by the model
// client adapters.
type RetryPolicy = retry.Policy

// DefaultRetryPolicy returns the policy used when a provider config doesn't
// override it.
func DefaultRetryPolicy() RetryPolicy {
	return retry.Default()
}

// Package retry re-runs transient failures of the network-facing stages
// (source loading and result upload) with a backoff policy.
//
// Policies:
//   - FixedDelayRetry: the same delay before every retry
//   - ExponentialBackoffRetry: delay grows by a multiplier up to a cap
//
// Only errors accepted by the policy's retry condition are retried. The
// default condition accepts errors marked with types.Transient, network
// timeouts; context errors are never retried.
//
// Basic usage example:
//
//	policy := retry.NewExponentialBackoffRetry(3, 100*time.Millisecond,
//		retry.WithMaxDelay(2*time.Second))
//	executor := retry.NewRetryExecutor(policy,
//		retry.WithEventHandler(retry.NewLogEventHandler(logger)))
//
//	data, err := retry.ExecuteWithName(executor, ctx, "load", func(ctx context.Context) ([]byte, error) {
//		return loader.Load(ctx, uri)
//	})
package retry

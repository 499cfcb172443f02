// Package redis initializes the Redis client used by the shared
// rate-limit store when the service runs with more than one instance.
//
// Connect validates the connection URL (redis:// or rediss://), builds
// the client, and verifies connectivity with a ping under exponential
// backoff, so a transient network hiccup at startup does not fail the
// service. Healthcheck returns a probe function for readiness endpoints.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
// Failures surface as the package's sentinel errors, checkable with
// errors.Is.
package redis

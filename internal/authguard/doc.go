// Package authguard protects the login endpoint against credential
// guessing with two independent mechanisms over one failure log:
//
//   - a sliding-window throttle: too many recent failures blocks further
//     attempts until the oldest failure in the window ages out, and
//   - a permanent lockout: once the all-time failure total crosses the
//     lockout threshold the account is locked until an administrator
//     unlocks it.
//
// A successful login clears the failure history entirely, resetting both
// mechanisms. The protection state is never stored; every check derives
// it from the attempt and lockout rows, so the components involved cannot
// disagree.
//
// Gate is the decision point. It delegates persistence to a Tracker:
// PostgresTracker for production, MemoryTracker for tests and
// single-node development. PurgeWorker trims attempts past the retention
// period in the background.
//
// Unlike the general request rate limiter, the gate fails closed: a
// storage error denies the login attempt.
package authguard

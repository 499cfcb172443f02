// Package ratelimit wires the token bucket limiter into the HTTP surface:
// it classifies request paths into rate classes, derives a per-client
// identity, and exposes middleware for whole-request gating plus a guard
// for individually throttled operations.
package ratelimit

// Package ratelimit provides admission control over a sliding time window:
// at most N events per key in the trailing W seconds.
//
// The counter keeps an ordered timestamp sequence per key and a periodic
// sweeper that drops keys idle for longer than a fixed horizon, so one-off
// callers cannot grow memory without bound.
package ratelimit

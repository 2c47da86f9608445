// Package query talks to the analytics query delegate: it builds filter
// conditions in the delegate's legacy condition grammar, posts queries over
// HTTP and optionally caches results in Redis.
package query

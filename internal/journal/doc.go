// Package journal batch-writes forwarded push updates to Postgres. It is an
// optional sink; the session works without it.
package journal

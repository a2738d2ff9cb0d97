// Package database provides the pgx connection pool used by the journal.
package database

// Package database provides the PostgreSQL connection pool for the
// message archive.
package database

// Package archive persists delivered channel messages to PostgreSQL.
//
// The archiver sits behind one or more manager subscriptions: delivery
// callbacks enqueue into a bounded intake buffer (non-blocking, so a
// slow database can never stall the read loop), and a writer goroutine
// batches rows into the messages table with COPY.
package archive

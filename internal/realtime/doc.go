// Package realtime implements the Realtime Channel Manager.
//
// The manager:
//   - Maintains at most one WebSocket connection to the relay server
//   - Multiplexes logical channels over it with optional per-subscriber filters
//   - Reconnects with exponential backoff on unexpected disconnection
//   - Keeps the connection alive with a periodic heartbeat ping
//   - Replays subscriptions and flushes queued outbound messages after reconnect
package realtime

// Package unii implements a client for the encrypted binary protocol of
// Alphatronics UNii intrusion panels.
//
// A Client keeps a persistent authenticated TCP session with the panel,
// mirrors its sections and inputs in memory, issues arm/disarm/bypass
// commands when an operator user code is configured, and relays
// panel-pushed events to subscribers. Connection loss is handled
// transparently: the client reconnects with exponential backoff and
// resynchronizes the full panel state before resuming notifications.
//
// The low-level framing, encryption and payload encodings live in the
// wire subpackage.
package unii

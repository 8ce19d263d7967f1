// Package relay implements the core of the group-messaging relay: the session
// registry and broadcast engine (Hub), the per-connection pumps (Client), the
// action router that turns inbound envelopes into persistence calls and
// fan-out, and the directory service for workspace/channel structure.
//
// One goroutine pair serves each connection; frames from a single session are
// handled strictly in arrival order. The hub's mutex is the only lock shared
// across sessions and its scope never includes network I/O.
package relay

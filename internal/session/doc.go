// Package session maintains a single persistent, authenticated WebSocket
// session with the venue, multiplexing RPC request/response exchanges and
// push subscriptions over one socket.
//
// Client owns the socket and read loop, Session runs the event loop and the
// authentication handshake, replyRouter maps untagged replies to handlers,
// and Registry deduplicates and fans out push updates per channel.
package session

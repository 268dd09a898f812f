// Package transport connects a drawing peer to the relay over WebSocket.
//
// Conn wraps a github.com/coder/websocket connection and exchanges
// types.Envelope values as JSON text frames (wsjson). It satisfies
// board.Transport.
//
// Client.Run dials the relay and hands each connection to a session
// function, reconnecting with truncated exponential backoff (1s→60s,
// ±25% jitter) whenever the session ends with an error. The backoff resets
// after every successful dial.
package transport

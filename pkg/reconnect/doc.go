// Package reconnect keeps a link to a remote firefly node alive.
//
// Firefly connections have no keepalive: a connection ends when the peer
// stops acknowledging important data and the port gives up resending, or
// when the application closes it. A Manager wraps a ConnectFunc that opens
// a connection and a first channel, and re-runs it after the link is
// reported lost.
//
// # Reconnection Strategy
//
// Attempts are spaced with exponential backoff:
//
//  1. Initial delay: 1 second
//  2. Exponential increase: 2s, 4s, 8s, 16s, 32s
//  3. Maximum delay: 60 seconds
//  4. Jitter: up to 25% of the delay
//
// The attempt counter resets after every successful connect.
//
// # Usage
//
//	m := reconnect.NewManager(func(ctx context.Context) error {
//	    return node.connectAndWait(ctx, addr)
//	}, reconnect.DefaultConfig())
//	m.Start()
//	defer m.Close()
//
//	// when the connection to addr is released
//	m.NotifyConnectionLost()
package reconnect

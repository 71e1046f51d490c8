// Package tunnel publishes the server on a public HTTPS address, for
// demos and for reaching a board that runs on a private network.
package tunnel

import (
	"context"
	"net"
)

// Tunnel exposes the server through a public listener.
type Tunnel interface {
	Start(ctx context.Context) (publicURL string, err error)
	Listener() net.Listener
	PublicURL() string
	Close() error
}

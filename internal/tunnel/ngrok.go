package tunnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"

	ngroklib "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"
)

// ErrMissingAuthtoken is returned by Start when no ngrok token is configured.
var ErrMissingAuthtoken = errors.New("ngrok authtoken is required (tunnel.authtoken or TASKBOARD_NGROK_AUTHTOKEN)")

// Ngrok is a Tunnel backed by an ngrok HTTP endpoint.
type Ngrok struct {
	authtoken string
	domain    string

	listener net.Listener
	url      string
}

// NewNgrok creates a tunnel. An empty domain asks ngrok for a random one.
func NewNgrok(authtoken, domain string) *Ngrok {
	return &Ngrok{authtoken: authtoken, domain: domain}
}

// Start opens the endpoint and returns its public URL.
func (n *Ngrok) Start(ctx context.Context) (string, error) {
	if n.authtoken == "" {
		return "", ErrMissingAuthtoken
	}

	var opts []ngrokconfig.HTTPEndpointOption
	if n.domain != "" {
		opts = append(opts, ngrokconfig.WithDomain(n.domain))
	}

	l, err := ngroklib.Listen(ctx, ngrokconfig.HTTPEndpoint(opts...), ngroklib.WithAuthtoken(n.authtoken))
	if err != nil {
		return "", fmt.Errorf("opening ngrok endpoint: %w", err)
	}
	n.listener = l
	n.url = publicURL(l.Addr().String())

	slog.Info("tunnel established", "public_url", n.url)
	return n.url, nil
}

// Listener returns the public listener; nil before Start.
func (n *Ngrok) Listener() net.Listener { return n.listener }

// PublicURL returns the endpoint URL; empty before Start.
func (n *Ngrok) PublicURL() string { return n.url }

// Close shuts the endpoint. Closing an unstarted tunnel is a no-op.
func (n *Ngrok) Close() error {
	if n.listener == nil {
		return nil
	}
	err := n.listener.Close()
	n.listener = nil
	n.url = ""
	if err != nil {
		return fmt.Errorf("closing ngrok endpoint: %w", err)
	}
	return nil
}

func publicURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "https://" + addr
}

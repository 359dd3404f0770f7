package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/tornago"
)

// DefaultTorStartupTimeout bounds how long the embedded Tor daemon may take
// to bootstrap.
const DefaultTorStartupTimeout = 3 * time.Minute

// ErrTorNotRunning is returned when the Tor endpoint is requested before Start.
var ErrTorNotRunning = errors.New("embedded Tor daemon is not running")

// EmbeddedTor runs a private Tor daemon and exposes its SOCKS5 listener as
// a proxy endpoint. Each Tor circuit exits from a different relay, which
// gives the rotated-identity strategy an egress that public proxy lists
// cannot block wholesale.
//
// Bootstrapping takes one to three minutes.
type EmbeddedTor struct {
	process        *tornago.TorProcess
	socksAddr      string
	startupTimeout time.Duration
}

// EmbeddedTorOption configures an EmbeddedTor.
type EmbeddedTorOption func(*EmbeddedTor)

// WithStartupTimeout sets the bootstrap timeout.
func WithStartupTimeout(timeout time.Duration) EmbeddedTorOption {
	return func(e *EmbeddedTor) {
		e.startupTimeout = timeout
	}
}

// NewEmbeddedTor returns a stopped daemon manager.
func NewEmbeddedTor(opts ...EmbeddedTorOption) *EmbeddedTor {
	e := &EmbeddedTor{startupTimeout: DefaultTorStartupTimeout}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start launches the daemon on OS-assigned ports and blocks until it has
// bootstrapped or the startup timeout expires.
func (e *EmbeddedTor) Start(ctx context.Context) error {
	launchCfg, err := tornago.NewTorLaunchConfig(
		tornago.WithTorSocksAddr(":0"),
		tornago.WithTorControlAddr(":0"),
		tornago.WithTorStartupTimeout(e.startupTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create Tor launch config: %w", err)
	}

	process, err := tornago.StartTorDaemon(launchCfg)
	if err != nil {
		return fmt.Errorf("failed to start embedded Tor daemon: %w", err)
	}

	select {
	case <-ctx.Done():
		_ = process.Stop() //nolint:errcheck // best effort cleanup
		return ctx.Err()
	default:
	}

	e.process = process
	e.socksAddr = process.SocksAddr()
	return nil
}

// Stop shuts the daemon down. It is safe to call on a stopped instance.
func (e *EmbeddedTor) Stop() error {
	if e.process == nil {
		return nil
	}
	err := e.process.Stop()
	e.process = nil
	e.socksAddr = ""
	return err
}

// IsRunning reports whether the daemon is up.
func (e *EmbeddedTor) IsRunning() bool {
	return e.process != nil
}

// Endpoint returns the daemon's SOCKS5 listener as a pool endpoint.
func (e *EmbeddedTor) Endpoint() (Endpoint, error) {
	if !e.IsRunning() {
		return Endpoint{}, ErrTorNotRunning
	}
	return ParseEndpoint("socks5://" + e.socksAddr)
}

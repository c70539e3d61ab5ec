package wmi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/isometry/go-wmi/internal/dcom"
)

// Connector establishes an authenticated WMI session against one server and
// owns the resulting service handle. All methods are safe for concurrent
// use; connect and disconnect calls are serialized.
type Connector struct {
	config    ConnectionConfig
	runtime   dcom.Runtime
	sessions  *SessionManager
	activator *Activator
	binder    *Binder

	mu       sync.Mutex
	state    State
	session  dcom.Session
	services *Services
}

// Option configures a Connector.
type Option func(*connectorOptions)

type connectorOptions struct {
	runtime dcom.Runtime
}

// WithRuntime replaces the remote-object runtime.
func WithRuntime(rt dcom.Runtime) Option {
	return func(o *connectorOptions) {
		o.runtime = rt
	}
}

// NewConnector creates a connector for config.
func NewConnector(config *ConnectionConfig, opts ...Option) (*Connector, error) {
	return NewConnectorWithContext(context.Background(), config, opts...)
}

// NewConnectorWithContext creates a connector for config, logging through
// the subsystems configured on ctx.
func NewConnectorWithContext(ctx context.Context, config *ConnectionConfig, opts ...Option) (*Connector, error) {
	if config == nil {
		return nil, fmt.Errorf("configuration cannot be nil")
	}

	cfg := *config
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var o connectorOptions
	for _, opt := range opts {
		opt(&o)
	}

	rt := o.runtime
	if rt == nil {
		rt = dcom.NewRuntime(dcom.RuntimeConfig{Port: cfg.Port})
	}

	logDebug(ctx, "Creating new WMI connector", map[string]any{
		"host_path":      cfg.HostPath(),
		"kerberos":       cfg.KerberosRealm != "",
		"socket_timeout": cfg.SocketTimeout.String(),
	})

	return &Connector{
		config:    cfg,
		runtime:   rt,
		sessions:  NewSessionManager(rt, &cfg),
		activator: NewActivator(rt),
		binder:    NewBinder(),
		state:     StateDisconnected,
	}, nil
}

// Connect runs the full connect sequence and returns the bound service
// handle. opts may be nil. When already connected the sequence runs again;
// on success the new session replaces the old one, which is destroyed unless
// RetainPriorSession is set. A failed attempt leaves the connector unchanged.
func (c *Connector) Connect(ctx context.Context, opts *ConnectOptions) (*Services, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	previous := c.state
	c.state = StateConnecting

	var (
		services *Services
		session  dcom.Session
	)
	err := LogOperation(ctx, "connect", map[string]any{"host_path": c.config.HostPath()}, func() error {
		var err error
		services, session, err = c.connect(ctx, opts)
		return err
	})
	observeConnect(err, time.Since(start).Seconds())

	if err != nil {
		c.state = previous
		return nil, err
	}

	priorSession, priorServices := c.session, c.services
	c.session, c.services, c.state = session, services, StateConnected

	if priorSession != nil {
		c.releasePrior(ctx, priorSession, priorServices)
	}

	return services, nil
}

func (c *Connector) connect(ctx context.Context, opts *ConnectOptions) (*Services, dcom.Session, error) {
	hostPath := c.config.HostPath()

	LogConnectionEvent(ctx, eventConnectAttempt, map[string]any{
		"host_path": hostPath,
		"user":      c.config.Username,
	})

	creds, err := ParseCredentials(c.config.Username)
	if err != nil {
		return nil, nil, err
	}

	logInfo(ctx, "Connecting to WMI", map[string]any{
		"host_path": hostPath,
	})

	session, err := c.sessions.Create(ctx, creds, c.config.Password)
	if err != nil {
		return nil, nil, c.connectFailed(ctx, err)
	}

	locator, err := c.activator.Activate(ctx, session, dcom.CLSIDWbemLocator, c.config.Server)
	if err != nil {
		c.discard(ctx, session)
		return nil, nil, c.connectFailed(ctx, err)
	}

	services, err := c.binder.Bind(ctx, locator, c.config.Server, c.config.Namespace, opts)
	if err != nil {
		c.discard(ctx, session)
		return nil, nil, c.connectFailed(ctx, err)
	}

	LogConnectionEvent(ctx, eventConnectEstablished, map[string]any{
		"host_path":  hostPath,
		"session_id": session.ID(),
	})

	return services, session, nil
}

// connectFailed returns host resolution failures as-is and wraps everything
// else as a connection failure.
func (c *Connector) connectFailed(ctx context.Context, err error) error {
	LogConnectionEvent(ctx, eventConnectFailed, map[string]any{
		"host_path": c.config.HostPath(),
		"error":     err.Error(),
	})

	if e, ok := err.(*Error); ok && (e.Kind == KindHostResolutionFailed || e.Kind == KindInvalidCredential) {
		return err
	}

	return newError(KindConnectionFailed, "connect", "failed to connect to "+c.config.HostPath(), err)
}

// discard destroys a session created by a failed attempt.
func (c *Connector) discard(ctx context.Context, session dcom.Session) {
	if err := c.sessions.Destroy(ctx, session); err != nil {
		logWarn(ctx, "Failed to discard session of failed connect attempt", map[string]any{
			"error": err.Error(),
		})
	}
}

// releasePrior handles the session replaced by a successful reconnect.
func (c *Connector) releasePrior(ctx context.Context, session dcom.Session, services *Services) {
	if c.config.RetainPriorSession {
		LogConnectionEvent(ctx, eventSessionRetained, map[string]any{
			"session_id": session.ID(),
		})
		return
	}

	services.invalidate()
	if err := c.sessions.Destroy(ctx, session); err != nil {
		logWarn(ctx, "Failed to destroy replaced session", map[string]any{
			"error": err.Error(),
		})
	}
}

// Services returns the bound service handle.
func (c *Connector) Services() (*Services, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.services == nil {
		return nil, newError(KindNotConnected, "services", "not connected to "+c.config.HostPath(), nil)
	}
	return c.services, nil
}

// Disconnect destroys the session. The connector is Disconnected and the
// service handle invalid afterwards, even when teardown fails. Disconnecting
// a disconnected connector is a no-op.
func (c *Connector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	session, services := c.session, c.services
	c.session, c.services, c.state = nil, nil, StateDisconnected

	services.invalidate()

	if session == nil {
		return nil
	}

	return LogOperation(ctx, "disconnect", map[string]any{"host_path": c.config.HostPath()}, func() error {
		return c.sessions.Destroy(ctx, session)
	})
}

// State returns the lifecycle phase.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// HostPath returns \\server\namespace for the configured target.
func (c *Connector) HostPath() string {
	return c.config.HostPath()
}

// Config returns a copy of the effective configuration.
func (c *Connector) Config() ConnectionConfig {
	return c.config
}

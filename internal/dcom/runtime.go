package dcom

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	iobjectexporter "github.com/oiweiwei/go-msrpc/msrpc/dcom/iobjectexporter/v0"
)

// DefaultEndpointMapperPort is the RPC endpoint mapper port activation
// requests are sent to.
const DefaultEndpointMapperPort = 135

// Runtime is the remote-object runtime: it owns sessions and builds class
// stubs against remote hosts.
type Runtime interface {
	// SuppressDiagnostics silences the runtime's internal logging. Failure
	// only means diagnostics stay at their configured level.
	SuppressDiagnostics() error

	// CreateSession prepares the credentials for cfg.
	CreateSession(ctx context.Context, cfg SessionConfig) (Session, error)

	// DestroySession closes every connection of sess and releases its
	// credentials. The session must not be used afterwards.
	DestroySession(ctx context.Context, sess Session) error

	// NewComServer resolves server, connects to its endpoint mapper over
	// sess and negotiates the COM version used for activation.
	NewComServer(ctx context.Context, clsid GUID, server string, sess Session) (ComServer, error)
}

// RuntimeConfig configures NewRuntime.
type RuntimeConfig struct {
	// Resolver resolves server names. Defaults to net.DefaultResolver.
	Resolver *net.Resolver

	// Port is the endpoint mapper port. Defaults to 135.
	Port int
}

type runtime struct {
	resolver *net.Resolver
	port     int

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRuntime creates a runtime speaking DCE/RPC through go-msrpc.
func NewRuntime(cfg RuntimeConfig) Runtime {
	port := cfg.Port
	if port <= 0 {
		port = DefaultEndpointMapperPort
	}

	resolver := cfg.Resolver
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	return &runtime{
		resolver: resolver,
		port:     port,
		sessions: make(map[string]*session),
	}
}

func (r *runtime) SuppressDiagnostics() error {
	return suppressDiagnostics()
}

func (r *runtime) CreateSession(ctx context.Context, cfg SessionConfig) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s, err := newSession(cfg)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()

	diagnostics().Debug("session created", "session_id", s.id, "domain", s.domain, "user", s.user, "auth", s.authType().String())

	return s, nil
}

func (r *runtime) DestroySession(ctx context.Context, sess Session) error {
	s, err := r.lookup(sess)
	if err != nil {
		return err
	}

	r.mu.Lock()
	delete(r.sessions, s.id)
	r.mu.Unlock()

	if err := s.destroy(ctx); err != nil {
		return err
	}

	diagnostics().Debug("session destroyed", "session_id", s.id)
	return nil
}

func (r *runtime) NewComServer(ctx context.Context, clsid GUID, server string, sess Session) (ComServer, error) {
	s, err := r.lookup(sess)
	if err != nil {
		return nil, err
	}
	if s.isDestroyed() {
		return nil, ErrSessionDestroyed
	}

	host, err := resolveHost(ctx, r.resolver, server)
	if err != nil {
		return nil, err
	}

	opts, err := s.bindOptions(server)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	address := net.JoinHostPort(host, strconv.Itoa(r.port))
	cc, err := dcerpc.Dial(ctx, address)
	if err != nil {
		return nil, NewError("connect", CodeServerUnavailable, fmt.Errorf("failed to connect to %s: %w", address, err))
	}
	if err := s.track(cc); err != nil {
		cc.Close(ctx)
		return nil, err
	}

	diagnostics().Debug("connected to endpoint mapper", "address", address, "auth_level", s.authLevel().String())

	exporter, err := iobjectexporter.NewObjectExporterClient(ctx, cc, opts...)
	if err != nil {
		return nil, bindFailure("connect", err)
	}

	alive, err := exporter.ServerAlive2(ctx, &iobjectexporter.ServerAlive2Request{})
	if err != nil {
		return nil, remoteFailure("connect", 0, err)
	}

	return &comServer{
		clsid:   clsid,
		server:  server,
		host:    host,
		session: s,
		conn:    cc,
		version: alive.COMVersion,
	}, nil
}

// lookup returns the concrete session if it was created by this runtime.
func (r *runtime) lookup(sess Session) (*session, error) {
	if sess == nil {
		return nil, fmt.Errorf("session is nil")
	}

	s, ok := sess.(*session)
	if !ok {
		return nil, fmt.Errorf("session %s was not created by this runtime", sess.ID())
	}

	r.mu.Lock()
	_, live := r.sessions[s.id]
	r.mu.Unlock()

	if !live {
		return nil, ErrSessionDestroyed
	}
	return s, nil
}

package dcom

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oiweiwei/go-msrpc/dcerpc"
)

// DefaultSocketTimeout bounds every remote exchange made over a session.
const DefaultSocketTimeout = 5 * time.Second

// SessionConfig holds the identity a session authenticates as.
type SessionConfig struct {
	Domain   string
	User     string
	Password string

	// Kerberos switches the session from NTLM to Kerberos when set.
	Kerberos *KerberosConfig
}

// Session is one authenticated identity against remote hosts. Connections
// opened for a session share its credentials, security and timeout settings.
type Session interface {
	ID() string
	Domain() string
	User() string

	// UseSessionSecurity toggles packet privacy on bindings made afterwards.
	// Without it bindings are signed but not encrypted.
	UseSessionSecurity(enabled bool)
	SessionSecurity() bool

	SetGlobalSocketTimeout(timeout time.Duration)
	GlobalSocketTimeout() time.Duration
}

// closer is the part of a dcerpc.Conn a session needs for teardown.
type closer interface {
	Close(ctx context.Context) error
}

type session struct {
	id       string
	domain   string
	user     string
	password string
	ntlm     []dcerpc.Option
	kerberos *kerberosSetup

	mu        sync.Mutex
	security  bool
	timeout   time.Duration
	conns     []closer
	destroyed bool
}

func newSession(cfg SessionConfig) (*session, error) {
	s := &session{
		id:       uuid.NewString(),
		domain:   cfg.Domain,
		user:     cfg.User,
		password: cfg.Password,
		timeout:  DefaultSocketTimeout,
	}

	var err error
	if cfg.Kerberos != nil {
		s.kerberos, err = newKerberosSetup(cfg)
	} else {
		s.ntlm, err = ntlmOptions(cfg)
	}
	if err != nil {
		return nil, errors.Join(ErrAuthentication, err)
	}

	return s, nil
}

func (s *session) ID() string {
	return s.id
}

func (s *session) Domain() string {
	return s.domain
}

func (s *session) User() string {
	return s.user
}

func (s *session) UseSessionSecurity(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.security = enabled
}

func (s *session) SessionSecurity() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.security
}

func (s *session) SetGlobalSocketTimeout(timeout time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timeout <= 0 {
		timeout = DefaultSocketTimeout
	}
	s.timeout = timeout
}

func (s *session) GlobalSocketTimeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *session) authType() AuthType {
	if s.kerberos != nil {
		return AuthTypeKerberos
	}
	return AuthTypeNTLM
}

func (s *session) authLevel() AuthLevel {
	return authLevelFor(s.SessionSecurity())
}

// bindOptions returns the security options for binding an interface on
// target.
func (s *session) bindOptions(target string) ([]dcerpc.Option, error) {
	opts := []dcerpc.Option{s.authLevel().option()}

	if s.kerberos == nil {
		return append(opts, s.ntlm...), nil
	}

	krb, err := s.kerberos.options(s.password, target)
	if err != nil {
		return nil, errors.Join(ErrAuthentication, err)
	}
	return append(opts, krb...), nil
}

// withTimeout bounds one remote exchange by the socket timeout.
func (s *session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.GlobalSocketTimeout())
}

// track registers c so that destroying the session closes it.
func (s *session) track(c closer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ErrSessionDestroyed
	}
	s.conns = append(s.conns, c)
	return nil
}

// release stops tracking c and closes it. Connections already released by
// a destroyed session are left alone.
func (s *session) release(ctx context.Context, c closer) error {
	s.mu.Lock()
	i := slices.Index(s.conns, c)
	if i < 0 {
		s.mu.Unlock()
		return nil
	}
	s.conns = slices.Delete(s.conns, i, i+1)
	s.mu.Unlock()

	return c.Close(ctx)
}

// destroy closes every connection and releases the credentials. A second
// call returns ErrSessionDestroyed.
func (s *session) destroy(ctx context.Context) error {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return ErrSessionDestroyed
	}
	s.destroyed = true
	conns := s.conns
	s.conns = nil
	s.password = ""
	s.ntlm = nil
	s.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}

	if s.kerberos != nil {
		if err := s.kerberos.close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release %s credentials: %w", s.authType(), err))
		}
	}

	return errors.Join(errs...)
}

func (s *session) isDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}

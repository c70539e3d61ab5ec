package wmi

import (
	"context"
	"time"

	"github.com/isometry/go-wmi/internal/dcom"
)

// suppressRuntimeDiagnostics asks rt to silence its diagnostics. The runtime
// applies this once per process; a failure only degrades logging.
func suppressRuntimeDiagnostics(ctx context.Context, rt dcom.Runtime) {
	if err := rt.SuppressDiagnostics(); err != nil {
		LogConnectionEvent(ctx, eventDiagnosticsDegraded, map[string]any{
			"error": err.Error(),
		})
	}
}

// SessionManager owns the lifecycle of authenticated runtime sessions.
type SessionManager struct {
	runtime  dcom.Runtime
	timeout  time.Duration
	kerberos *dcom.KerberosConfig
}

// NewSessionManager creates a session manager using the authentication and
// timeout settings of cfg.
func NewSessionManager(rt dcom.Runtime, cfg *ConnectionConfig) *SessionManager {
	sm := &SessionManager{
		runtime: rt,
		timeout: cfg.SocketTimeout,
	}

	if cfg.KerberosRealm != "" {
		sm.kerberos = &dcom.KerberosConfig{
			Realm:      cfg.KerberosRealm,
			ConfigPath: cfg.KerberosConfig,
			Keytab:     cfg.KerberosKeytab,
			CCache:     cfg.KerberosCCache,
			SPN:        cfg.KerberosSPN,
		}
	}

	if sm.timeout <= 0 {
		sm.timeout = dcom.DefaultSocketTimeout
	}

	return sm
}

// Create opens a session for creds with session security enabled and the
// configured socket timeout applied.
func (m *SessionManager) Create(ctx context.Context, creds Credentials, password string) (dcom.Session, error) {
	suppressRuntimeDiagnostics(ctx, m.runtime)

	sess, err := m.runtime.CreateSession(ctx, dcom.SessionConfig{
		Domain:   creds.Domain,
		User:     creds.User,
		Password: password,
		Kerberos: m.kerberos,
	})
	if err != nil {
		return nil, newError(KindAuthenticationSetupFailed, "create_session",
			"failed to set up session for "+creds.String(), err)
	}

	sess.UseSessionSecurity(true)
	sess.SetGlobalSocketTimeout(m.timeout)
	SessionsActive.Inc()

	LogConnectionEvent(ctx, eventSessionCreated, map[string]any{
		"session_id":     sess.ID(),
		"user":           creds.String(),
		"socket_timeout": m.timeout.String(),
		"kerberos":       m.kerberos != nil,
	})

	return sess, nil
}

// Destroy tears down sess. The session is unusable afterwards even when an
// error is returned.
func (m *SessionManager) Destroy(ctx context.Context, sess dcom.Session) error {
	if sess == nil {
		return nil
	}

	SessionsActive.Dec()

	err := m.runtime.DestroySession(ctx, sess)
	observeTeardown(err)
	if err != nil {
		LogConnectionEvent(ctx, eventTeardownFailed, map[string]any{
			"session_id": sess.ID(),
			"error":      err.Error(),
		})
		return newError(KindTeardownFailed, "destroy_session", "failed to destroy session "+sess.ID(), err)
	}

	LogConnectionEvent(ctx, eventSessionDestroyed, map[string]any{
		"session_id": sess.ID(),
	})
	return nil
}

package wmi

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/isometry/go-wmi/internal/dcom"
)

// fakeSession records the settings applied by the session manager.
type fakeSession struct {
	id       string
	cfg      dcom.SessionConfig
	security bool
	timeout  time.Duration
}

func (s *fakeSession) ID() string { return s.id }
func (s *fakeSession) Domain() string { return s.cfg.Domain }
func (s *fakeSession) User() string { return s.cfg.User }
func (s *fakeSession) UseSessionSecurity(enabled bool) { s.security = enabled }
func (s *fakeSession) SessionSecurity() bool { return s.security }
func (s *fakeSession) SetGlobalSocketTimeout(timeout time.Duration) { s.timeout = timeout }
func (s *fakeSession) GlobalSocketTimeout() time.Duration { return s.timeout }

type invocation struct {
	method string
	args   []dcom.Variant
}

// fakeDispatch answers every QueryInterface with itself and records calls.
type fakeDispatch struct {
	iid       dcom.GUID
	queryErr  error
	results   []dcom.Variant
	invokeErr error
	calls     []invocation
}

func (d *fakeDispatch) IID() dcom.GUID { return d.iid }

func (d *fakeDispatch) QueryInterface(_ context.Context, iid dcom.GUID) (dcom.Object, error) {
	if d.queryErr != nil {
		return nil, d.queryErr
	}
	d.iid = iid
	return d, nil
}

func (d *fakeDispatch) Invoke(_ context.Context, method string, args ...dcom.Variant) ([]dcom.Variant, error) {
	d.calls = append(d.calls, invocation{method: method, args: args})
	if d.invokeErr != nil {
		return nil, d.invokeErr
	}
	return d.results, nil
}

// fakeObject is a remote object without automation support.
type fakeObject struct {
	iid dcom.GUID
}

func (o *fakeObject) IID() dcom.GUID { return o.iid }

func (o *fakeObject) QueryInterface(_ context.Context, iid dcom.GUID) (dcom.Object, error) {
	return &fakeObject{iid: iid}, nil
}

type fakeComServer struct {
	instance    dcom.Object
	instanceErr error
}

func (s *fakeComServer) CreateInstance(context.Context) (dcom.Object, error) {
	if s.instanceErr != nil {
		return nil, s.instanceErr
	}
	return s.instance, nil
}

func (s *fakeComServer) Close() error { return nil }

type stubRequest struct {
	clsid   dcom.GUID
	server  string
	session dcom.Session
}

// fakeRuntime is a dcom.Runtime whose failures are injected per step.
type fakeRuntime struct {
	mu sync.Mutex

	suppressErr error
	createErr   error
	destroyErr  error
	stubErr     error
	instanceErr error

	// instance is returned by CreateInstance; defaults to locator.
	instance dcom.Object
	locator  *fakeDispatch
	service  *fakeDispatch

	suppressCalls int
	created       []*fakeSession
	destroyed     []string
	stubs         []stubRequest
}

func newFakeRuntime() *fakeRuntime {
	service := &fakeDispatch{iid: dcom.IIDDispatch}
	return &fakeRuntime{
		service: service,
		locator: &fakeDispatch{
			results: []dcom.Variant{dcom.ObjectVariant(service)},
		},
	}
}

func (r *fakeRuntime) SuppressDiagnostics() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suppressCalls++
	return r.suppressErr
}

func (r *fakeRuntime) CreateSession(_ context.Context, cfg dcom.SessionConfig) (dcom.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return nil, r.createErr
	}
	sess := &fakeSession{id: uuid.NewString(), cfg: cfg}
	r.created = append(r.created, sess)
	return sess, nil
}

func (r *fakeRuntime) DestroySession(_ context.Context, sess dcom.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = append(r.destroyed, sess.ID())
	return r.destroyErr
}

func (r *fakeRuntime) NewComServer(_ context.Context, clsid dcom.GUID, server string, sess dcom.Session) (dcom.ComServer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stubs = append(r.stubs, stubRequest{clsid: clsid, server: server, session: sess})
	if r.stubErr != nil {
		return nil, r.stubErr
	}
	instance := r.instance
	if instance == nil {
		instance = r.locator
	}
	return &fakeComServer{instance: instance, instanceErr: r.instanceErr}, nil
}

func (r *fakeRuntime) lastSession() *fakeSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.created) == 0 {
		return nil
	}
	return r.created[len(r.created)-1]
}

func testConfig() *ConnectionConfig {
	return &ConnectionConfig{
		Server:   "192.0.2.1",
		Username: `CORP\alice`,
		Password: "pw",
	}
}

func newTestConnector(t *testing.T, cfg *ConnectionConfig, rt dcom.Runtime) *Connector {
	t.Helper()

	conn, err := NewConnectorWithContext(t.Context(), cfg, WithRuntime(rt))
	if err != nil {
		t.Fatalf("NewConnectorWithContext() error = %v", err)
	}
	return conn
}

func accessDenied(op string) error {
	return dcom.NewError(op, dcom.CodeAccessDenied, errors.New("access is denied"))
}

func ptr[T any](v T) *T {
	return &v
}

package wmi

import (
	"context"
	"sync/atomic"

	"github.com/isometry/go-wmi/internal/dcom"
)

// Services is a service handle bound to one namespace on one server. It
// becomes invalid when its connector disconnects or reconnects.
type Services struct {
	dispatch    dcom.Dispatch
	server      string
	namespace   string
	namedValues any

	valid atomic.Bool
}

func newServices(disp dcom.Dispatch, server, namespace string, namedValues any) *Services {
	s := &Services{
		dispatch:    disp,
		server:      server,
		namespace:   namespace,
		namedValues: namedValues,
	}
	s.valid.Store(true)
	return s
}

// Dispatch returns the automation interface of the bound service.
func (s *Services) Dispatch() (dcom.Dispatch, error) {
	if !s.Valid() {
		return nil, s.notConnected("dispatch")
	}
	return s.dispatch, nil
}

// Call invokes method on the bound service.
func (s *Services) Call(ctx context.Context, method string, args ...dcom.Variant) ([]dcom.Variant, error) {
	if !s.Valid() {
		return nil, s.notConnected("call")
	}

	var results []dcom.Variant
	err := LogOperation(ctx, "call", map[string]any{"method": method, "host_path": s.HostPath()}, func() error {
		logTrace(ctx, "Invoking method on bound service", map[string]any{
			"method":    method,
			"arg_count": len(args),
		})

		var err error
		results, err = s.dispatch.Invoke(ctx, method, args...)
		if err != nil {
			return mapActivationError("call", err)
		}
		return nil
	})

	return results, err
}

// Valid reports whether the handle may still be used.
func (s *Services) Valid() bool {
	return s != nil && s.valid.Load()
}

// Server returns the host the handle is bound to.
func (s *Services) Server() string {
	return s.server
}

// Namespace returns the bound namespace.
func (s *Services) Namespace() string {
	return s.namespace
}

// HostPath returns \\server\namespace.
func (s *Services) HostPath() string {
	return `\\` + s.server + `\` + s.namespace
}

// NamedValues returns the context object supplied at connect time.
func (s *Services) NamedValues() any {
	return s.namedValues
}

func (s *Services) invalidate() {
	if s != nil {
		s.valid.Store(false)
	}
}

func (s *Services) notConnected(operation string) error {
	return newError(KindNotConnected, operation, "service handle is no longer connected", nil)
}

package wmi

import (
	"context"
	"errors"
	"net"

	"github.com/isometry/go-wmi/internal/dcom"
)

// Activator instantiates a remote class and narrows it to its automation
// interface. A single attempt is made per call.
type Activator struct {
	runtime dcom.Runtime
}

// NewActivator creates an activator over rt.
func NewActivator(rt dcom.Runtime) *Activator {
	return &Activator{runtime: rt}
}

// Activate builds a stub for clsid on server over sess, instantiates it and
// returns its dispatch interface.
func (a *Activator) Activate(ctx context.Context, sess dcom.Session, clsid dcom.GUID, server string) (dcom.Dispatch, error) {
	logDebug(ctx, "Activating remote class", map[string]any{
		"clsid":  clsid.String(),
		"server": server,
	})

	stub, err := a.runtime.NewComServer(ctx, clsid, server, sess)
	if err != nil {
		return nil, mapActivationError("create_stub", err)
	}

	unknown, err := stub.CreateInstance(ctx)
	if err != nil {
		return nil, mapActivationError("create_instance", err)
	}

	obj, err := unknown.QueryInterface(ctx, clsid)
	if err != nil {
		return nil, mapActivationError("query_interface", err)
	}

	dispObj, err := obj.QueryInterface(ctx, dcom.IIDDispatch)
	if err != nil {
		return nil, mapActivationError("query_interface", err)
	}

	disp, err := dcom.NarrowDispatch(dispObj)
	if err != nil {
		return nil, mapActivationError("narrow", err)
	}

	return disp, nil
}

// mapActivationError classifies runtime failures. Errors that are neither
// resolution, authentication nor protocol failures are returned unchanged.
func mapActivationError(operation string, err error) error {
	var dnsErr *net.DNSError
	if errors.Is(err, dcom.ErrUnknownHost) || errors.As(err, &dnsErr) {
		return newError(KindHostResolutionFailed, operation, "server name could not be resolved", err)
	}

	if errors.Is(err, dcom.ErrAuthentication) {
		return newError(KindAuthenticationSetupFailed, operation, "authentication with the remote host failed", err)
	}

	var dcomErr *dcom.Error
	if errors.As(err, &dcomErr) {
		return newRemoteError(operation, dcomErr)
	}

	return err
}

package wmi

import (
	"context"
	"fmt"
	"strings"

	"github.com/isometry/go-wmi/internal/dcom"
)

const (
	connectServerMethod = "ConnectServer"

	// connectServerArgCount is fixed by SWbemLocator.ConnectServer.
	connectServerArgCount = 8
)

// Authority prefixes understood by the remote service.
var authorityPrefixes = []string{"kerberos:", "ntlmdomain:"}

// Binder calls ConnectServer on an activated locator.
type Binder struct{}

// NewBinder creates a binder.
func NewBinder() *Binder {
	return &Binder{}
}

// Bind connects locator to namespace on server and wraps the result as a
// service handle. opts may be nil.
func (b *Binder) Bind(ctx context.Context, locator dcom.Dispatch, server, namespace string, opts *ConnectOptions) (*Services, error) {
	if opts == nil {
		opts = &ConnectOptions{}
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	if opts.Authority != nil && !hasAuthorityPrefix(*opts.Authority) {
		logWarn(ctx, "Authority does not start with kerberos: or ntlmdomain:, passing it through", map[string]any{
			"authority": *opts.Authority,
		})
	}

	args := buildConnectServerArgs(namespace, opts)

	logDebug(ctx, "Invoking ConnectServer", map[string]any{
		"namespace":     namespace,
		"security_flag": args[6].String(),
	})

	results, err := locator.Invoke(ctx, connectServerMethod, args...)
	if err != nil {
		return nil, mapActivationError("connect_server", err)
	}

	if len(results) == 0 {
		return nil, newRemoteError("connect_server",
			dcom.NewError("connect_server", dcom.CodeTypeMismatch, fmt.Errorf("ConnectServer returned no result")))
	}

	obj, ok := results[0].AsObject()
	if !ok {
		return nil, newRemoteError("connect_server",
			dcom.NewError("connect_server", dcom.CodeTypeMismatch, fmt.Errorf("ConnectServer returned %s, expected an object", results[0].Type())))
	}

	disp, err := dcom.NarrowDispatch(obj)
	if err != nil {
		return nil, mapActivationError("connect_server", err)
	}

	return newServices(disp, server, namespace, opts.NamedValues), nil
}

// buildConnectServerArgs lays out the eight positional ConnectServer
// arguments. Omitted values are sent as the optional marker.
func buildConnectServerArgs(namespace string, opts *ConnectOptions) []dcom.Variant {
	args := make([]dcom.Variant, connectServerArgCount)
	for i := range args {
		args[i] = dcom.Optional()
	}

	args[1] = dcom.String(namespace)

	if opts.Locale != nil {
		args[4] = dcom.String(*opts.Locale)
	}

	if opts.Authority != nil {
		args[5] = dcom.String(*opts.Authority)
	}

	flag := SecurityFlagWaitForever
	if opts.SecurityFlag != nil {
		flag = *opts.SecurityFlag
	}
	args[6] = dcom.Int32(flag)

	return args
}

func hasAuthorityPrefix(authority string) bool {
	lower := strings.ToLower(authority)
	for _, prefix := range authorityPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

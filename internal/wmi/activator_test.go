package wmi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/go-wmi/internal/dcom"
)

func TestActivator_Activate(t *testing.T) {
	rt := newFakeRuntime()
	sess := &fakeSession{id: "s1"}

	disp, err := NewActivator(rt).Activate(t.Context(), sess, dcom.CLSIDWbemLocator, "dc01.corp.example.com")
	require.NoError(t, err)
	assert.Same(t, rt.locator, disp)
	assert.Equal(t, dcom.IIDDispatch, disp.IID())

	require.Len(t, rt.stubs, 1)
	assert.Equal(t, dcom.CLSIDWbemLocator, rt.stubs[0].clsid)
	assert.Equal(t, "dc01.corp.example.com", rt.stubs[0].server)
	assert.Same(t, sess, rt.stubs[0].session)
}

func TestActivator_Activate_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(rt *fakeRuntime)
		wantKind ErrorKind
		wantOp   string
		wantCode uint32
	}{
		{
			name: "stub creation access denied",
			setup: func(rt *fakeRuntime) {
				rt.stubErr = accessDenied("bind")
			},
			wantKind: KindRemoteActivationFailed,
			wantOp:   "create_stub",
			wantCode: dcom.CodeAccessDenied,
		},
		{
			name: "instantiation not implemented",
			setup: func(rt *fakeRuntime) {
				rt.instanceErr = dcom.NewError("create_instance", dcom.CodeNotImplemented, nil)
			},
			wantKind: KindRemoteActivationFailed,
			wantOp:   "create_instance",
			wantCode: dcom.CodeNotImplemented,
		},
		{
			name: "query interface fails",
			setup: func(rt *fakeRuntime) {
				rt.locator.queryErr = dcom.NewError("query_interface", dcom.CodeNoInterface, nil)
			},
			wantKind: KindRemoteActivationFailed,
			wantOp:   "query_interface",
			wantCode: dcom.CodeNoInterface,
		},
		{
			name: "narrow fails",
			setup: func(rt *fakeRuntime) {
				rt.instance = &fakeObject{}
			},
			wantKind: KindRemoteActivationFailed,
			wantOp:   "narrow",
			wantCode: dcom.CodeNoInterface,
		},
		{
			name: "unknown host",
			setup: func(rt *fakeRuntime) {
				rt.stubErr = fmt.Errorf("%w: nosuchhost", dcom.ErrUnknownHost)
			},
			wantKind: KindHostResolutionFailed,
			wantOp:   "create_stub",
		},
		{
			name: "authentication",
			setup: func(rt *fakeRuntime) {
				rt.stubErr = fmt.Errorf("%w: negotiate failed", dcom.ErrAuthentication)
			},
			wantKind: KindAuthenticationSetupFailed,
			wantOp:   "create_stub",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := newFakeRuntime()
			tt.setup(rt)

			disp, err := NewActivator(rt).Activate(t.Context(), &fakeSession{id: "s1"}, dcom.CLSIDWbemLocator, "dc01")
			require.Error(t, err)
			assert.Nil(t, disp)

			var wmiErr *Error
			require.ErrorAs(t, err, &wmiErr)
			assert.Equal(t, tt.wantKind, wmiErr.Kind)
			assert.Equal(t, tt.wantOp, wmiErr.Operation)
			assert.Equal(t, tt.wantCode, wmiErr.Code)
		})
	}
}

func TestMapActivationError(t *testing.T) {
	t.Run("dns error", func(t *testing.T) {
		err := mapActivationError("create_stub", &net.DNSError{Err: "no such host", Name: "dc01", IsNotFound: true})
		assert.ErrorIs(t, err, ErrHostResolutionFailed)
	})

	t.Run("context cancellation is returned unchanged", func(t *testing.T) {
		cause := fmt.Errorf("bind: %w", context.Canceled)
		err := mapActivationError("create_stub", cause)
		assert.Same(t, cause, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})

	t.Run("wrapped protocol error keeps code", func(t *testing.T) {
		err := mapActivationError("invoke", fmt.Errorf("call: %w", dcom.NewError("invoke", dcom.CodeServerUnavailable, nil)))
		code, ok := ErrorCode(err)
		require.True(t, ok)
		assert.Equal(t, dcom.CodeServerUnavailable, code)
		assert.True(t, IsRetryableError(err))
	})
}

package wmi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isometry/go-wmi/internal/dcom"
)

func TestServices_Call(t *testing.T) {
	disp := &fakeDispatch{
		iid:     dcom.IIDDispatch,
		results: []dcom.Variant{dcom.Bool(true)},
	}
	services := newServices(disp, "dc01", `root\cimv2`, nil)

	results, err := services.Call(t.Context(), "ExecQuery", dcom.String("SELECT * FROM Win32_OperatingSystem"))
	require.NoError(t, err)
	require.Len(t, results, 1)

	ok, _ := results[0].AsBool()
	assert.True(t, ok)

	require.Len(t, disp.calls, 1)
	assert.Equal(t, "ExecQuery", disp.calls[0].method)
	query, _ := disp.calls[0].args[0].AsString()
	assert.Equal(t, "SELECT * FROM Win32_OperatingSystem", query)
}

func TestServices_Call_RemoteError(t *testing.T) {
	disp := &fakeDispatch{invokeErr: dcom.NewError("invoke", dcom.CodeMemberNotFound, nil)}
	services := newServices(disp, "dc01", `root\cimv2`, nil)

	_, err := services.Call(t.Context(), "NoSuchMethod")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRemoteActivationFailed)

	code, ok := ErrorCode(err)
	require.True(t, ok)
	assert.Equal(t, dcom.CodeMemberNotFound, code)
}

func TestServices_Invalidated(t *testing.T) {
	disp := &fakeDispatch{}
	services := newServices(disp, "dc01", `root\cimv2`, nil)
	services.invalidate()

	assert.False(t, services.Valid())

	_, err := services.Dispatch()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = services.Call(t.Context(), "ExecQuery")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Empty(t, disp.calls)
}

func TestServices_NilHandle(t *testing.T) {
	var services *Services
	assert.False(t, services.Valid())
	services.invalidate()
}

func TestServices_Accessors(t *testing.T) {
	services := newServices(&fakeDispatch{}, "2001:db8::1", `root\default`, "ctx")

	assert.Equal(t, "2001:db8::1", services.Server())
	assert.Equal(t, `root\default`, services.Namespace())
	assert.Equal(t, `\\2001:db8::1\root\default`, services.HostPath())
	assert.Equal(t, "ctx", services.NamedValues())
}

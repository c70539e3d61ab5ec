package dcom

import (
	"context"
	"fmt"
	"strings"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	msdcom "github.com/oiweiwei/go-msrpc/msrpc/dcom"
	iactivation "github.com/oiweiwei/go-msrpc/msrpc/dcom/iactivation/v0"
	iwbemlevel1login "github.com/oiweiwei/go-msrpc/msrpc/dcom/wmi/iwbemlevel1login/v0"
	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
)

const (
	// protocolSequenceTCP requests ncacn_ip_tcp bindings for the activated
	// object's exporter.
	protocolSequenceTCP  uint16 = 7
	protocolSequenceName        = "ncacn_ip_tcp"

	connectServerMethod   = "ConnectServer"
	connectServerArgCount = 8
	defaultNamespace      = `root\cimv2`
)

// activationTarget is the class and interface activated on the remote host
// for a requested class.
type activationTarget struct {
	clsid GUID
	iid   GUID
}

// SWbemLocator is an in-process scripting class. Remote hosts serve its
// ConnectServer through the WMI level-1 login class.
var activationTargets = map[GUID]activationTarget{
	CLSIDWbemLocator: {clsid: CLSIDWbemLevel1Login, iid: IIDWbemLevel1Login},
}

func classID(g GUID) *dtyp.GUID {
	return &dtyp.GUID{Data1: g.Data1(), Data2: g.Data2(), Data3: g.Data3(), Data4: g.Data4()}
}

func interfaceID(g GUID) *msdcom.IID {
	return &msdcom.IID{Data1: g.Data1(), Data2: g.Data2(), Data3: g.Data3(), Data4: g.Data4()}
}

// comServer is a class stub on one host: an endpoint mapper connection and
// the COM version negotiated over it.
type comServer struct {
	clsid   GUID
	server  string
	host    string
	session *session
	conn    dcerpc.Conn
	version *msdcom.COMVersion
}

func (s *comServer) CreateInstance(ctx context.Context) (Object, error) {
	target, ok := activationTargets[s.clsid]
	if !ok {
		return nil, NewError("create_instance", CodeClassNotRegistered, fmt.Errorf("class %s cannot be activated remotely", s.clsid))
	}
	if s.session.isDestroyed() {
		return nil, ErrSessionDestroyed
	}

	opts, err := s.session.bindOptions(s.server)
	if err != nil {
		return nil, err
	}

	ctx, cancel := s.session.withTimeout(ctx)
	defer cancel()

	diagnostics().Debug("creating remote instance", "clsid", s.clsid.String(), "activated_clsid", target.clsid.String(), "server", s.server)

	act, err := iactivation.NewActivationClient(ctx, s.conn, opts...)
	if err != nil {
		return nil, bindFailure("create_instance", err)
	}

	resp, err := act.RemoteActivation(ctx, &iactivation.RemoteActivationRequest{
		ORPCThis:                   &msdcom.ORPCThis{Version: s.version},
		ClassID:                    classID(target.clsid),
		IIDs:                       []*msdcom.IID{interfaceID(target.iid)},
		RequestedProtocolSequences: []uint16{protocolSequenceTCP},
	})
	if err != nil {
		var status int32
		if resp != nil {
			status = resp.Return
		}
		return nil, remoteFailure("create_instance", status, err)
	}
	if resp.HResult != 0 {
		return nil, NewError("create_instance", uint32(resp.HResult), nil)
	}
	if len(resp.InterfaceData) == 0 || resp.InterfaceData[0] == nil {
		return nil, NewError("create_instance", CodeNoInterface, fmt.Errorf("activation of %s returned no interface", target.clsid))
	}

	ref := resp.InterfaceData[0].GetStandardObjectReference()
	if ref == nil || ref.Std == nil {
		return nil, NewError("create_instance", CodeNoInterface, fmt.Errorf("activation of %s returned a non-standard object reference", target.clsid))
	}

	endpoints := resp.OXIDBindings.EndpointsByProtocol(protocolSequenceName)
	if len(endpoints) == 0 {
		return nil, NewError("create_instance", CodeServerUnavailable, fmt.Errorf("object exporter offers no %s binding", protocolSequenceName))
	}

	oc, err := dcerpc.Dial(ctx, s.host, endpoints...)
	if err != nil {
		return nil, NewError("create_instance", CodeServerUnavailable, fmt.Errorf("failed to connect to object exporter: %w", err))
	}
	if err := s.session.track(oc); err != nil {
		oc.Close(ctx)
		return nil, err
	}

	login, err := iwbemlevel1login.NewLevel1LoginClient(ctx, oc, append(opts, msdcom.WithIPID(ref.Std.IPID))...)
	if err != nil {
		return nil, bindFailure("create_instance", err)
	}

	return &locator{class: s.clsid, iid: IIDUnknown, server: s, login: login}, nil
}

func (s *comServer) Close() error {
	return s.session.release(context.Background(), s.conn)
}

// locator serves the SWbemLocator automation surface from a level-1 login
// reference.
type locator struct {
	class  GUID
	iid    GUID
	server *comServer
	login  iwbemlevel1login.Level1LoginClient
}

func (l *locator) IID() GUID {
	return l.iid
}

func (l *locator) QueryInterface(_ context.Context, iid GUID) (Object, error) {
	switch iid {
	case IIDUnknown, IIDDispatch, IIDWbemLevel1Login, l.class:
		narrowed := *l
		narrowed.iid = iid
		return &narrowed, nil
	default:
		return nil, NewError("query_interface", CodeNoInterface, fmt.Errorf("%s does not implement %s", l.class, iid))
	}
}

func (l *locator) Invoke(ctx context.Context, method string, args ...Variant) ([]Variant, error) {
	if !strings.EqualFold(method, connectServerMethod) {
		return nil, NewError("invoke", CodeMemberNotFound, fmt.Errorf("%s is not a member of %s", method, l.class))
	}

	call, err := parseConnectServer(args)
	if err != nil {
		return nil, err
	}
	if l.login == nil || l.server == nil {
		return nil, NewError("invoke", CodeDisconnected, nil)
	}

	ctx, cancel := l.server.session.withTimeout(ctx)
	defer cancel()

	resp, err := l.login.NTLMLogin(ctx, &iwbemlevel1login.NTLMLoginRequest{
		This:            &msdcom.ORPCThis{Version: l.server.version},
		NetworkResource: networkResource(call.namespace),
		PreferredLocale: call.locale,
		Flags:           call.flags,
	})
	if err != nil {
		var status int32
		if resp != nil {
			status = resp.Return
		}
		return nil, remoteFailure("invoke", status, err)
	}
	if resp.Namespace == nil {
		return nil, NewError("invoke", CodeNoInterface, fmt.Errorf("ConnectServer returned no namespace for %s", call.namespace))
	}

	diagnostics().Debug("namespace bound", "namespace", call.namespace, "ipid", resp.Namespace.InterfacePointer().IPID())

	return []Variant{ObjectVariant(&wbemServices{namespace: call.namespace, iid: IIDWbemServices})}, nil
}

// connectServerCall holds the ConnectServer arguments the login interface
// understands.
type connectServerCall struct {
	namespace string
	locale    string
	flags     int32
}

// parseConnectServer checks the eight positional ConnectServer arguments.
// Credentials must be omitted since the session identity is used; the
// authority and named values are carried by the session and ignored.
func parseConnectServer(args []Variant) (connectServerCall, error) {
	if len(args) != connectServerArgCount {
		return connectServerCall{}, NewError("invoke", CodeBadParamCount,
			fmt.Errorf("ConnectServer takes %d arguments, got %d", connectServerArgCount, len(args)))
	}

	call := connectServerCall{namespace: defaultNamespace}

	for _, i := range []int{0, 5} {
		if _, ok := optionalString(args[i]); !ok {
			return call, mismatch(i, args[i])
		}
	}

	if ns, ok := optionalString(args[1]); !ok {
		return call, mismatch(1, args[1])
	} else if ns != "" {
		call.namespace = ns
	}

	for _, i := range []int{2, 3} {
		s, ok := optionalString(args[i])
		if !ok {
			return call, mismatch(i, args[i])
		}
		if s != "" {
			return call, NewError("invoke", CodeNotImplemented, fmt.Errorf("per-call credentials are not supported, the session identity is used"))
		}
	}

	locale, ok := optionalString(args[4])
	if !ok {
		return call, mismatch(4, args[4])
	}
	call.locale = locale

	if !args[6].IsOptional() {
		flags, ok := args[6].AsInt32()
		if !ok {
			return call, mismatch(6, args[6])
		}
		call.flags = flags
	}

	if !args[7].IsOptional() {
		if _, ok := args[7].AsObject(); !ok {
			return call, mismatch(7, args[7])
		}
	}

	return call, nil
}

func optionalString(v Variant) (string, bool) {
	if v.IsOptional() {
		return "", true
	}
	return v.AsString()
}

func mismatch(position int, v Variant) error {
	return NewError("invoke", CodeTypeMismatch, fmt.Errorf("argument %d has unexpected type %s", position, v.Type()))
}

// networkResource renders a namespace the way the login interface expects,
// for example //./root/cimv2.
func networkResource(namespace string) string {
	ns := strings.TrimLeft(namespace, `\/`)
	return "//./" + strings.ReplaceAll(ns, `\`, "/")
}

// wbemServices is the namespace handle returned by ConnectServer.
type wbemServices struct {
	namespace string
	iid       GUID
}

func (w *wbemServices) IID() GUID {
	return w.iid
}

func (w *wbemServices) QueryInterface(_ context.Context, iid GUID) (Object, error) {
	switch iid {
	case IIDUnknown, IIDDispatch, IIDWbemServices:
		return &wbemServices{namespace: w.namespace, iid: iid}, nil
	default:
		return nil, NewError("query_interface", CodeNoInterface, fmt.Errorf("namespace handle does not implement %s", iid))
	}
}

// Invoke reports every member as missing: queries and object access on the
// namespace are not exposed through automation here.
func (w *wbemServices) Invoke(_ context.Context, method string, _ ...Variant) ([]Variant, error) {
	return nil, NewError("invoke", CodeMemberNotFound, fmt.Errorf("%s is not exposed on namespace %s", method, w.namespace))
}

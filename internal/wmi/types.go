package wmi

import (
	"fmt"
	"time"

	"github.com/creasty/defaults"
)

// DefaultNamespace is bound when the configuration leaves Namespace empty.
const DefaultNamespace = `root\cimv2`

// Security flags for the ConnectServer call.
const (
	// SecurityFlagWaitForever blocks until the connection is established.
	SecurityFlagWaitForever int32 = 0

	// SecurityFlagReturnImmediately bounds the wait to about two minutes
	// (wbemConnectFlagUseMaxWait).
	SecurityFlagReturnImmediately int32 = 128
)

// ConnectionConfig holds configuration for a Connector.
type ConnectionConfig struct {
	// Connection settings
	Server string // Host name, IPv4 or IPv6 literal

	// Namespace to bind
	Namespace string `default:"root\\cimv2"`

	// Authentication settings
	Username string // user or DOMAIN\user
	Password string // Password for NTLM or Kerberos

	KerberosRealm  string // Kerberos realm; enables Kerberos when set
	KerberosConfig string // Path to krb5.conf; generated when empty
	KerberosKeytab string // Path to Kerberos keytab file
	KerberosCCache string // Path to Kerberos credential cache
	KerberosSPN    string // Service principal override

	// Bound on each blocking network exchange
	SocketTimeout time.Duration `default:"5s"`

	// Endpoint mapper port
	Port int `default:"135"`

	// RetainPriorSession keeps the previous session alive when Connect is
	// called while already connected. The caller then owns its teardown.
	RetainPriorSession bool
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *ConnectionConfig {
	cfg := &ConnectionConfig{}
	if err := cfg.applyDefaults(); err != nil {
		panic(err)
	}
	return cfg
}

func (c *ConnectionConfig) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return fmt.Errorf("failed to set default values: %w", err)
	}
	return nil
}

// HostPath returns the \\server\namespace path the configuration targets.
func (c *ConnectionConfig) HostPath() string {
	namespace := c.Namespace
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return `\\` + c.Server + `\` + namespace
}

// State is the lifecycle phase of a Connector.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns string representation of the state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return "Unknown"
	}
}

// ConnectOptions are the optional ConnectServer parameters. A nil field is
// omitted from the remote call.
type ConnectOptions struct {
	// Locale such as "MS_409". Omitted means the caller's current locale.
	Locale *string

	// Authority such as "kerberos:CORP\\dc01" or "ntlmdomain:CORP".
	Authority *string

	// SecurityFlag is sent as-is as a VT_I4; omitted means
	// SecurityFlagWaitForever.
	SecurityFlag *int32

	// NamedValues is an opaque context object passed through to callers of
	// the bound service. It is not sent with ConnectServer.
	NamedValues any
}

// Credentials is a username split into its domain and user parts.
type Credentials struct {
	Domain string
	User   string
}

// String returns DOMAIN\user, or just user without a domain.
func (c Credentials) String() string {
	if c.Domain == "" {
		return c.User
	}
	return c.Domain + `\` + c.User
}

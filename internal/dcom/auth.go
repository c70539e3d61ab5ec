package dcom

import (
	"fmt"
	"strings"

	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
)

// AuthType is the security provider a session authenticates with.
type AuthType uint8

const (
	AuthTypeNone     AuthType = 0
	AuthTypeNTLM     AuthType = 10 // RPC_C_AUTHN_WINNT
	AuthTypeKerberos AuthType = 16 // RPC_C_AUTHN_GSS_KERBEROS
)

// String returns string representation of the authentication type.
func (a AuthType) String() string {
	switch a {
	case AuthTypeNone:
		return "none"
	case AuthTypeNTLM:
		return "ntlm"
	case AuthTypeKerberos:
		return "kerberos"
	default:
		return "unknown"
	}
}

// AuthLevel is the RPC authentication level requested for a binding.
type AuthLevel uint8

const (
	AuthLevelConnect         AuthLevel = 2
	AuthLevelPacketIntegrity AuthLevel = 5
	AuthLevelPacketPrivacy   AuthLevel = 6
)

// String returns the RPC_C_AUTHN_LEVEL name without its prefix.
func (l AuthLevel) String() string {
	switch l {
	case AuthLevelConnect:
		return "connect"
	case AuthLevelPacketIntegrity:
		return "pkt_integrity"
	case AuthLevelPacketPrivacy:
		return "pkt_privacy"
	default:
		return fmt.Sprintf("level(%d)", uint8(l))
	}
}

// authLevelFor maps the session security toggle to an auth level. Bindings
// are always at least signed.
func authLevelFor(security bool) AuthLevel {
	if security {
		return AuthLevelPacketPrivacy
	}
	return AuthLevelPacketIntegrity
}

// option returns the go-msrpc security option for l.
func (l AuthLevel) option() dcerpc.Option {
	if l == AuthLevelPacketPrivacy {
		return dcerpc.WithSeal()
	}
	return dcerpc.WithSign()
}

// qualifiedUser returns DOMAIN\user, or user alone without a domain.
func qualifiedUser(domain, user string) string {
	if domain == "" || strings.ContainsAny(user, `\@`) {
		return user
	}
	return domain + `\` + user
}

// ntlmOptions returns the binding options of an NTLM session.
func ntlmOptions(cfg SessionConfig) ([]dcerpc.Option, error) {
	if cfg.User == "" {
		return nil, fmt.Errorf("username is required for NTLM authentication")
	}

	cred := credential.NewFromPassword(qualifiedUser(cfg.Domain, cfg.User), cfg.Password)

	return []dcerpc.Option{
		dcerpc.WithCredentials(cred),
		dcerpc.WithMechanism(ssp.NTLM),
	}, nil
}

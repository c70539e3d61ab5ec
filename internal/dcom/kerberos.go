package dcom

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strings"

	"github.com/jcmturner/gokrb5/v8/config"
	"github.com/jcmturner/gokrb5/v8/credentials"
	"github.com/jcmturner/gokrb5/v8/keytab"
	"github.com/oiweiwei/go-msrpc/dcerpc"
	"github.com/oiweiwei/go-msrpc/ssp"
	"github.com/oiweiwei/go-msrpc/ssp/credential"
	"github.com/oiweiwei/go-msrpc/ssp/krb5"
)

// KerberosConfig selects Kerberos instead of NTLM for a session.
type KerberosConfig struct {
	Realm      string // Kerberos realm; required
	ConfigPath string // Path to krb5.conf; generated for DNS KDC discovery when empty
	Keytab     string // Path to a keytab for the user principal
	CCache     string // Path to an existing credential cache
	SPN        string // Service principal override; defaults to RPCSS/<host>
}

// kerberosSetup is the Kerberos state of one session: a validated
// krb5.conf on disk and the principal the session authenticates as.
type kerberosSetup struct {
	user     string
	realm    string
	spn      string
	ccache   string
	keytab   string
	confPath string

	// generated marks confPath as a temporary file owned by the session.
	generated bool
}

func newKerberosSetup(cfg SessionConfig) (*kerberosSetup, error) {
	if err := validateKerberosConfig(cfg); err != nil {
		return nil, fmt.Errorf("kerberos configuration error: %w", err)
	}

	kc := cfg.Kerberos
	if _, err := loadKrb5Config(kc); err != nil {
		return nil, err
	}

	k := &kerberosSetup{
		user:     cfg.User,
		realm:    strings.ToUpper(kc.Realm),
		spn:      kc.SPN,
		confPath: kc.ConfigPath,
	}

	if fileExists(kc.CCache) {
		cc, err := credentials.LoadCCache(kc.CCache)
		if err != nil {
			return nil, fmt.Errorf("failed to load credential cache %s: %w", kc.CCache, err)
		}
		k.ccache = kc.CCache
		if k.user == "" {
			k.user = cc.GetClientPrincipalName().PrincipalNameString()
		}
	}

	if fileExists(kc.Keytab) {
		if _, err := keytab.Load(kc.Keytab); err != nil {
			return nil, fmt.Errorf("failed to load keytab %s: %w", kc.Keytab, err)
		}
		k.keytab = kc.Keytab
	}

	if k.confPath == "" {
		path, err := writeRuntimeKrb5Conf(kc.Realm)
		if err != nil {
			return nil, err
		}
		k.confPath = path
		k.generated = true
	}

	diagnostics().Debug("kerberos session prepared", "user", k.user, "realm", k.realm, "krb5_conf", k.confPath)

	return k, nil
}

// options returns the binding options for target. A credential cache or
// keytab takes precedence over the password inside the security provider.
func (k *kerberosSetup) options(password, target string) ([]dcerpc.Option, error) {
	spn, err := buildServicePrincipal(k.spn, target)
	if err != nil {
		return nil, err
	}

	mech := krb5.NewConfig()
	mech.KRB5ConfPath = k.confPath
	mech.CCachePath = k.ccache
	mech.KeytabPath = k.keytab
	mech.DCEStyle = true

	cred := credential.NewFromPassword(k.realm+`\`+k.user, password)

	return []dcerpc.Option{
		dcerpc.WithCredentials(cred),
		dcerpc.WithMechanism(ssp.KRB5, mech),
		dcerpc.WithTargetName(spn),
	}, nil
}

// close removes a generated krb5.conf.
func (k *kerberosSetup) close() error {
	if !k.generated {
		return nil
	}
	if err := os.Remove(k.confPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", k.confPath, err)
	}
	return nil
}

// validateKerberosConfig checks that a Kerberos session can be attempted.
func validateKerberosConfig(cfg SessionConfig) error {
	if cfg.Kerberos == nil {
		return fmt.Errorf("kerberos configuration is required")
	}

	if cfg.Kerberos.Realm == "" {
		return fmt.Errorf("kerberos realm is required")
	}

	if cfg.User == "" && cfg.Kerberos.CCache == "" {
		return fmt.Errorf("username (principal) is required for Kerberos authentication")
	}

	hasCCache := fileExists(cfg.Kerberos.CCache)
	hasKeytab := fileExists(cfg.Kerberos.Keytab)

	if !hasCCache && !hasKeytab && cfg.Password == "" {
		return fmt.Errorf("no suitable Kerberos credentials found: provide a credential cache, a keytab or a password")
	}

	return nil
}

// loadKrb5Config loads krb5.conf from disk or generates one relying on DNS
// SRV records for KDC discovery.
func loadKrb5Config(kc *KerberosConfig) (*config.Config, error) {
	if kc.ConfigPath != "" {
		if !fileExists(kc.ConfigPath) {
			return nil, fmt.Errorf("kerberos configuration file not found at %s", kc.ConfigPath)
		}
		cfg, err := config.Load(kc.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", kc.ConfigPath, err)
		}
		return cfg, nil
	}

	cfg, err := config.NewFromString(generateRuntimeKrb5Conf(kc.Realm))
	if err != nil {
		return nil, fmt.Errorf("failed to generate runtime krb5.conf: %w", err)
	}
	return cfg, nil
}

// writeRuntimeKrb5Conf writes the generated krb5.conf for realm to a
// temporary file and returns its path.
func writeRuntimeKrb5Conf(realm string) (string, error) {
	f, err := os.CreateTemp("", "go-wmi-krb5-*.conf")
	if err != nil {
		return "", fmt.Errorf("failed to create runtime krb5.conf: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(generateRuntimeKrb5Conf(realm)); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("failed to write runtime krb5.conf: %w", err)
	}
	return f.Name(), nil
}

// generateRuntimeKrb5Conf generates a krb5.conf for DNS-based KDC discovery.
func generateRuntimeKrb5Conf(realm string) string {
	upper := strings.ToUpper(realm)
	lower := strings.ToLower(realm)

	return fmt.Sprintf(`[libdefaults]
    default_realm = %s
    dns_lookup_kdc = true
    dns_lookup_realm = false
    rdns = false
    forwardable = true

[realms]
    %s = {
    }

[domain_realm]
    .%s = %s
    %s = %s
`,
		upper,
		upper,
		lower, upper,
		lower, upper,
	)
}

// buildServicePrincipal returns the override when set, else RPCSS/<host>.
func buildServicePrincipal(override, target string) (string, error) {
	if override != "" {
		return override, nil
	}

	host := target
	if h, _, err := net.SplitHostPort(target); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")

	if host == "" {
		return "", fmt.Errorf("hostname is required for service principal")
	}

	return "RPCSS/" + host, nil
}

// fileExists checks if a file exists and is readable.
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	file.Close()
	return true
}

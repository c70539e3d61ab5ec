package wmi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable ConfigFromEnv reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		EnvServer, EnvUsername, EnvPassword, EnvNamespace, EnvSocketTimeout,
		EnvPort, EnvKerberosRealm, EnvKerberosConfig,
		EnvKerberosKeytab, EnvKerberosCCache, EnvKerberosSPN,
		EnvRetainPriorSession, "KRB5_CONFIG", "KRB5CCNAME",
	} {
		t.Setenv(name, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, `root\cimv2`, cfg.Namespace)
	assert.Equal(t, 5*time.Second, cfg.SocketTimeout)
	assert.Equal(t, 135, cfg.Port)
	assert.False(t, cfg.RetainPriorSession)
}

func TestConfigFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvServer, "dc01.corp.example.com")
	t.Setenv(EnvUsername, `CORP\alice`)
	t.Setenv(EnvPassword, "pw")
	t.Setenv(EnvNamespace, `root\default`)
	t.Setenv(EnvSocketTimeout, "2500")
	t.Setenv(EnvPort, "1135")
	t.Setenv(EnvRetainPriorSession, "true")

	cfg := ConfigFromEnv()

	assert.Equal(t, "dc01.corp.example.com", cfg.Server)
	assert.Equal(t, `CORP\alice`, cfg.Username)
	assert.Equal(t, "pw", cfg.Password)
	assert.Equal(t, `root\default`, cfg.Namespace)
	assert.Equal(t, 2500*time.Millisecond, cfg.SocketTimeout)
	assert.Equal(t, 1135, cfg.Port)
	assert.True(t, cfg.RetainPriorSession)
	require.NoError(t, cfg.Validate())
}

func TestConfigFromEnv_InvalidValuesKeepDefaults(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvSocketTimeout, "soon")
	t.Setenv(EnvPort, "epmap")
	t.Setenv(EnvRetainPriorSession, "maybe")

	cfg := ConfigFromEnv()

	assert.Equal(t, 5*time.Second, cfg.SocketTimeout)
	assert.Equal(t, 135, cfg.Port)
	assert.False(t, cfg.RetainPriorSession)
}

func TestConfigFromEnv_Kerberos(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantConfig string
		wantCCache string
	}{
		{
			name: "explicit settings",
			env: map[string]string{
				EnvKerberosConfig: "/etc/wmi/krb5.conf",
				EnvKerberosCCache: "/tmp/wmi_cc",
			},
			wantConfig: "/etc/wmi/krb5.conf",
			wantCCache: "/tmp/wmi_cc",
		},
		{
			name: "standard variables",
			env: map[string]string{
				"KRB5_CONFIG": "/etc/krb5.conf",
				"KRB5CCNAME":  "FILE:/tmp/krb5cc_1000",
			},
			wantConfig: "/etc/krb5.conf",
			wantCCache: "/tmp/krb5cc_1000",
		},
		{
			name: "explicit settings win",
			env: map[string]string{
				EnvKerberosCCache: "/tmp/wmi_cc",
				"KRB5CCNAME":      "FILE:/tmp/krb5cc_1000",
			},
			wantCCache: "/tmp/wmi_cc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(EnvKerberosRealm, "CORP.EXAMPLE.COM")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := ConfigFromEnv()

			assert.Equal(t, "CORP.EXAMPLE.COM", cfg.KerberosRealm)
			assert.Equal(t, tt.wantConfig, cfg.KerberosConfig)
			assert.Equal(t, tt.wantCCache, cfg.KerberosCCache)
		})
	}
}

func TestConnectionConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  *ConnectionConfig
		wantErr string
	}{
		{
			name:    "nil",
			config:  nil,
			wantErr: "configuration cannot be nil",
		},
		{
			name:    "blank server",
			config:  &ConnectionConfig{Server: "  ", Username: "alice"},
			wantErr: "server is required",
		},
		{
			name:    "missing username",
			config:  &ConnectionConfig{Server: "dc01"},
			wantErr: "username is required",
		},
		{
			name:   "credential cache without username",
			config: &ConnectionConfig{Server: "dc01", KerberosRealm: "CORP.EXAMPLE.COM", KerberosCCache: "/tmp/krb5cc"},
		},
		{
			name:    "credential cache without realm",
			config:  &ConnectionConfig{Server: "dc01", KerberosCCache: "/tmp/krb5cc"},
			wantErr: "username is required",
		},
		{
			name:    "negative timeout",
			config:  &ConnectionConfig{Server: "dc01", Username: "alice", SocketTimeout: -time.Second},
			wantErr: "socket timeout cannot be negative",
		},
		{
			name:    "port out of range",
			config:  &ConnectionConfig{Server: "dc01", Username: "alice", Port: 70000},
			wantErr: "port 70000 is out of range",
		},
		{
			name:    "keytab without realm",
			config:  &ConnectionConfig{Server: "dc01", Username: "alice", KerberosKeytab: "/etc/krb5.keytab"},
			wantErr: "kerberos realm is required",
		},
		{
			name:    "spn without realm",
			config:  &ConnectionConfig{Server: "dc01", Username: "alice", KerberosSPN: "RPCSS/dc01"},
			wantErr: "kerberos realm is required",
		},
		{
			name:   "ipv6 literal",
			config: &ConnectionConfig{Server: "2001:db8::1", Username: `CORP\alice`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConnectionConfig_HostPath(t *testing.T) {
	assert.Equal(t, `\\dc01\root\cimv2`, (&ConnectionConfig{Server: "dc01"}).HostPath())
	assert.Equal(t, `\\2001:db8::1\root\default`, (&ConnectionConfig{Server: "2001:db8::1", Namespace: `root\default`}).HostPath())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Disconnected", StateDisconnected.String())
	assert.Equal(t, "Connecting", StateConnecting.String())
	assert.Equal(t, "Connected", StateConnected.String())
	assert.Equal(t, "Unknown", State(42).String())
}

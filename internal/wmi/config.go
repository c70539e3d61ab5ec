package wmi

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvServer             = "WMI_SERVER"
	EnvUsername           = "WMI_USERNAME"
	EnvPassword           = "WMI_PASSWORD"
	EnvNamespace          = "WMI_NAMESPACE"
	EnvSocketTimeout      = "WMI_SOCKET_TIMEOUT" // milliseconds
	EnvPort               = "WMI_PORT"
	EnvKerberosRealm      = "WMI_KERBEROS_REALM"
	EnvKerberosConfig     = "WMI_KERBEROS_CONFIG"
	EnvKerberosKeytab     = "WMI_KERBEROS_KEYTAB"
	EnvKerberosCCache     = "WMI_KERBEROS_CCACHE"
	EnvKerberosSPN        = "WMI_KERBEROS_SPN"
	EnvRetainPriorSession = "WMI_RETAIN_PRIOR_SESSION"
)

// ConfigFromEnv builds a configuration from the WMI_* environment variables.
// Unset or unparsable values keep their defaults. KRB5_CONFIG and KRB5CCNAME
// are honoured when the WMI_KERBEROS_* equivalents are unset.
func ConfigFromEnv() *ConnectionConfig {
	cfg := DefaultConfig()

	cfg.Server = getStringValue(EnvServer, cfg.Server)
	cfg.Username = getStringValue(EnvUsername, cfg.Username)
	cfg.Password = getStringValue(EnvPassword, cfg.Password)
	cfg.Namespace = getStringValue(EnvNamespace, cfg.Namespace)

	cfg.KerberosRealm = getStringValue(EnvKerberosRealm, cfg.KerberosRealm)
	cfg.KerberosConfig = getStringValue(EnvKerberosConfig, os.Getenv("KRB5_CONFIG"))
	cfg.KerberosKeytab = getStringValue(EnvKerberosKeytab, cfg.KerberosKeytab)
	cfg.KerberosCCache = getStringValue(EnvKerberosCCache, defaultCCachePath())
	cfg.KerberosSPN = getStringValue(EnvKerberosSPN, cfg.KerberosSPN)

	timeoutMs := getInt64Value(EnvSocketTimeout, cfg.SocketTimeout.Milliseconds())
	cfg.SocketTimeout = time.Duration(timeoutMs) * time.Millisecond
	cfg.Port = int(getInt64Value(EnvPort, int64(cfg.Port)))
	cfg.RetainPriorSession = getBoolValue(EnvRetainPriorSession, cfg.RetainPriorSession)

	return cfg
}

// Validate checks that the configuration can be used to connect.
func (c *ConnectionConfig) Validate() error {
	if c == nil {
		return fmt.Errorf("configuration cannot be nil")
	}

	if strings.TrimSpace(c.Server) == "" {
		return fmt.Errorf("server is required")
	}

	// A Kerberos credential cache carries its own principal.
	if c.Username == "" && (c.KerberosRealm == "" || c.KerberosCCache == "") {
		return fmt.Errorf("username is required")
	}

	if c.SocketTimeout < 0 {
		return fmt.Errorf("socket timeout cannot be negative")
	}

	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d is out of range", c.Port)
	}

	if c.KerberosRealm == "" && (c.KerberosKeytab != "" || c.KerberosSPN != "") {
		return fmt.Errorf("kerberos realm is required when Kerberos settings are provided")
	}

	return nil
}

func getStringValue(envVar, defaultValue string) string {
	if envValue := os.Getenv(envVar); envValue != "" {
		return envValue
	}
	return defaultValue
}

func getBoolValue(envVar string, defaultValue bool) bool {
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseBool(envValue); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Value(envVar string, defaultValue int64) int64 {
	if envValue := os.Getenv(envVar); envValue != "" {
		if parsed, err := strconv.ParseInt(envValue, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// defaultCCachePath returns the KRB5CCNAME credential cache, if any.
func defaultCCachePath() string {
	ccache := os.Getenv("KRB5CCNAME")
	return strings.TrimPrefix(ccache, "FILE:")
}

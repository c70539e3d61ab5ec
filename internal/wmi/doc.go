/*
Package wmi connects to the WMI service of a remote Windows host.

A Connector runs one connect sequence per call:

  - ParseCredentials splits DOMAIN\user into its parts
  - SessionManager creates an authenticated runtime session with session
    security enabled and the configured socket timeout
  - Activator instantiates the SWbemLocator class on the server and narrows
    it to its automation interface
  - Binder calls ConnectServer on the locator and wraps the result as a
    Services handle bound to the requested namespace

Disconnect destroys the session and invalidates the handle.

# Configuration

ConnectionConfig carries defaults through struct tags. ConfigFromEnv reads the
WMI_* environment variables:

	cfg := wmi.ConfigFromEnv()
	conn, err := wmi.NewConnectorWithContext(ctx, cfg)
	if err != nil {
		return err
	}
	services, err := conn.Connect(ctx, nil)

# Errors

Failures are returned as *Error values classified by ErrorKind. Remote
failures carry the native status code, available through ErrorCode. Sentinels
such as ErrNotConnected match any error of the same kind with errors.Is.

# Logging

Connector logs go to the "wmi" tflog subsystem registered by InitLogging,
with the level read from WMI_LOG_LEVEL. InitLogging needs a context that
already carries a tflog root logger, as provided to Terraform providers.
Contexts that never passed through InitLogging log to an hclog logger on
stderr instead, at WMI_LOG_LEVEL or warn when unset. Passwords are never
logged.
*/
package wmi

// Package dcom is the remote-object runtime used to reach WMI.
//
// It owns authenticated sessions (NTLM, or Kerberos with krb5.conf handling
// from gokrb5) and speaks DCE/RPC through go-msrpc: the endpoint mapper is
// reached for ServerAlive2 and remote activation, and the activated object
// is bound on the exporter endpoint the server hands back. Bindings are
// sealed when session security is on and signed otherwise. Callers see the
// remote objects through the Object, Dispatch and ComServer interfaces.
//
// Runtime diagnostics go to a process-wide hclog logger whose level is read
// from DCOM_LOG_LEVEL.
package dcom

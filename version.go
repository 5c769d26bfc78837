// Package alerta carries the build identity shared by the daemons.
package alerta

// Version is reported in the server's own heartbeat, the ops surface and
// startup logs.
const Version = "0.1.0"

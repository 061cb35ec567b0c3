// Package daemonctl launches and stops the background daemon process on
// behalf of the CLI.
package daemonctl

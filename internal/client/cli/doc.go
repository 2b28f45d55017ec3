// Package cli is the interactive command-line client for the auth API.
//
// App wires the client config, the HTTP API client and the auth service,
// then runs a small REPL (see runREPL) with register, login, logout,
// whoami, ping and forgot commands. A background watcher pings the server
// and switches between online and offline mode.
package cli

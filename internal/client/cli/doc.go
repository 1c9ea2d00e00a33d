// Package cli provides the interactive storefront command-line client.
//
// It wires configuration, the local sqlite session store, the HTTP session
// client and a gRPC connection, then runs a small REPL:
//   - register / login / logout / logoutall
//   - me, get <path> and ping
//   - changepassword and status
//
// Any command that finds the session over prints "please sign in again".
// Start it with App.Run(ctx), which blocks until the user exits.
package cli

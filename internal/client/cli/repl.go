package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. *App implements it.
type execIface interface {
	isLoggedIn() bool
	Register(ctx context.Context) error
	Login(ctx context.Context) error
	Me(ctx context.Context) error
	Get(ctx context.Context, path string) error
	Ping(ctx context.Context) error
	Logout(ctx context.Context) error
	LogoutAll(ctx context.Context) error
	ChangePassword(ctx context.Context) error
	Status(ctx context.Context) error
}

// runREPL reads one command per line from reader and dispatches it to a
// until EOF, "exit" or "quit". Command errors are printed and the loop
// keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		printlnFn(fmt.Sprintf("storefront [%s] > ", statusFn()))
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}

		var cmdErr error
		switch cmd := parts[0]; cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn("Available commands: me, get <path>, ping, status, changepassword, logout, logoutall, exit")
			} else {
				printlnFn("Available commands: register, login, ping, status, exit")
			}

		case "register":
			cmdErr = a.Register(ctx)

		case "login":
			cmdErr = a.Login(ctx)

		case "me":
			cmdErr = a.Me(ctx)

		case "get":
			if len(parts) < 2 {
				printlnFn("Usage: get <path>")
				continue
			}
			cmdErr = a.Get(ctx, parts[1])

		case "ping":
			cmdErr = a.Ping(ctx)

		case "status":
			cmdErr = a.Status(ctx)

		case "changepassword", "passwd":
			cmdErr = a.ChangePassword(ctx)

		case "logout":
			cmdErr = a.Logout(ctx)

		case "logoutall":
			cmdErr = a.LogoutAll(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn(describe(cmdErr))
		}
	}
}

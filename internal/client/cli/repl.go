package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Login(ctx context.Context) error
	SignUp(ctx context.Context) error
	Logout(ctx context.Context) error
	Setup(ctx context.Context) error
	Ingest(ctx context.Context, args []string) error
	Decrypt(ctx context.Context, args []string) error
	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	Delete(ctx context.Context, args []string) error
	Undo(ctx context.Context, args []string) error
	Flush(ctx context.Context) error
	Summary(ctx context.Context, args []string) error
	Budget(ctx context.Context, args []string) error
}

const (
	helpLoggedOut = "Available commands: login, signup, exit"
	helpLoggedIn  = "Available commands: setup, ingest <path> [category], decrypt <id>..., (l)ist, show <id>, " +
		"delete <id>, undo <id>, flush, summary [YYYY-MM], budget <category> <amount>, logout, exit"
)

// runREPL starts a simple read–eval–print loop for the FinanceKit CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. The loop exits on scanner EOF,
// context cancellation, or when the user types "exit" or "quit".
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("fk %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpLoggedOut)
			}
		case "login":
			err = a.Login(ctx)
		case "signup":
			err = a.SignUp(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		case "setup", "ingest", "decrypt", "l", "list", "show", "delete", "undo", "flush", "summary", "budget", "logout":
			if !a.isLoggedIn() {
				printlnFn("Please login first")
				continue
			}
			err = dispatch(ctx, a, cmd, args)
		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}

func dispatch(ctx context.Context, a execIface, cmd string, args []string) error {
	switch cmd {
	case "setup":
		return a.Setup(ctx)
	case "ingest":
		return a.Ingest(ctx, args)
	case "decrypt":
		return a.Decrypt(ctx, args)
	case "l", "list":
		return a.List(ctx)
	case "show":
		return a.Show(ctx, args)
	case "delete":
		return a.Delete(ctx, args)
	case "undo":
		return a.Undo(ctx, args)
	case "flush":
		return a.Flush(ctx)
	case "summary":
		return a.Summary(ctx, args)
	case "budget":
		return a.Budget(ctx, args)
	case "logout":
		return a.Logout(ctx)
	}
	return nil
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	loggedIn bool
	failOn   string

	calls []string
	args  [][]string
}

func (f *fakeExec) record(name string, args []string) error {
	f.calls = append(f.calls, name)
	f.args = append(f.args, args)
	if name == f.failOn {
		return errors.New("boom")
	}
	return nil
}

func (f *fakeExec) isLoggedIn() bool { return f.loggedIn }
func (f *fakeExec) Login(ctx context.Context) error {
	f.loggedIn = true
	return f.record("login", nil)
}
func (f *fakeExec) SignUp(ctx context.Context) error { return f.record("signup", nil) }
func (f *fakeExec) Logout(ctx context.Context) error {
	f.loggedIn = false
	return f.record("logout", nil)
}
func (f *fakeExec) Setup(ctx context.Context) error { return f.record("setup", nil) }
func (f *fakeExec) Ingest(ctx context.Context, a []string) error {
	return f.record("ingest", a)
}
func (f *fakeExec) Decrypt(ctx context.Context, a []string) error {
	return f.record("decrypt", a)
}
func (f *fakeExec) List(ctx context.Context) error               { return f.record("list", nil) }
func (f *fakeExec) Show(ctx context.Context, a []string) error   { return f.record("show", a) }
func (f *fakeExec) Delete(ctx context.Context, a []string) error { return f.record("delete", a) }
func (f *fakeExec) Undo(ctx context.Context, a []string) error   { return f.record("undo", a) }
func (f *fakeExec) Flush(ctx context.Context) error              { return f.record("flush", nil) }
func (f *fakeExec) Summary(ctx context.Context, a []string) error {
	return f.record("summary", a)
}
func (f *fakeExec) Budget(ctx context.Context, a []string) error { return f.record("budget", a) }

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func TestRunREPL_LoginFlowAndCommands(t *testing.T) {
	captureOutput(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"list",
		"login",
		"help",
		"ingest /tmp/r.jpg food",
		"l",
		"show 12",
		"delete 12",
		"undo 12",
		"flush",
		"summary 2025-03",
		"budget food 100",
		"foobar",
		"logout",
		"exit",
		"list",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	assert.Equal(t, []string{"login", "ingest", "list", "show", "delete", "undo", "flush", "summary", "budget", "logout"}, exec.calls)
	assert.Equal(t, []string{"/tmp/r.jpg", "food"}, exec.args[1])
	assert.Equal(t, []string{"food", "100"}, exec.args[8])
}

func TestRunREPL_RequiresLogin(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("delete 1\nquit\n")))

	assert.Empty(t, exec.calls)
	assert.Contains(t, *out, "Please login first")
	assert.Contains(t, *out, "Bye!")
}

func TestRunREPL_PrintsErrorsAndContinues(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{loggedIn: true, failOn: "show"}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("show 1\nlist\n")))

	assert.Equal(t, []string{"show", "list"}, exec.calls)
	assert.Contains(t, *out, "Error: boom")
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := &fakeExec{loggedIn: true}
	runREPL(ctx, exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("list\n")))
	assert.Empty(t, exec.calls)
}

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"ptybroker/internal/grid"
	"ptybroker/internal/headless"
	"ptybroker/internal/ptyadapter"
	"ptybroker/internal/tokenfile"
)

func newRunCmd() *cobra.Command {
	var server string
	var token string
	var tokenPath string
	var sessionName string
	var paneName string
	var shell string
	var shellArgs string
	var cols int
	var rows int
	var activityLogPath string
	var attach bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Spawn a shell and bridge it to the broker",
		Long: `Run spawns a shell in a new PTY and drives the headless runtime's
event loop, publishing the terminal's rendered output onto a pane's
output channel and writing bytes popped off its input channel to the
PTY, until the child exits or the process is signalled.

If --session/--pane are omitted, a new session and pane are created on
the broker and their ids are printed to stdout before the loop starts.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				if tokenPath == "" {
					tokenPath = tokenfile.Path()
				}
				t, err := tokenfile.LoadOrCreate(tokenPath)
				if err != nil {
					return fmt.Errorf("load token: %w", err)
				}
				token = t
			}

			client, err := headless.Dial(server, token, headless.DialOptions{})
			if err != nil {
				return err
			}

			sessionID, paneID := sessionName, paneName
			switch {
			case sessionID == "":
				sessionID, paneID, err = client.CreateSession(sessionName)
			case paneID == "":
				paneID, err = client.CreatePane(sessionID, paneName)
			}
			if err != nil {
				client.Close()
				return err
			}

			diag := newDiagPrinter(os.Stderr)
			fmt.Fprintf(cmd.OutOrStdout(), "session-id:%s pane-id:%s\n", sessionID, paneID)
			if diag.interactive && diag.color {
				diag.Printf("launched from an interactive shell; diagnostics will be colored")
			}

			if cols <= 0 || rows <= 0 {
				if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil {
					if cols <= 0 {
						cols = w
					}
					if rows <= 0 {
						rows = h
					}
				}
			}
			if cols <= 0 {
				cols = 80
			}
			if rows <= 0 {
				rows = 24
			}

			var extraArgs []string
			if shellArgs != "" {
				extraArgs, err = shlex.Split(shellArgs)
				if err != nil {
					client.Close()
					return fmt.Errorf("parse --shell-args: %w", err)
				}
			}

			shellPath := ptyadapter.ValidateShellPath(shell)
			p, err := ptyadapter.Spawn(shellPath, extraArgs, os.Environ(), cols, rows)
			if err != nil {
				client.Close()
				diag.Printf("spawn failed: %v", err)
				return fmt.Errorf("spawn shell: %w", err)
			}

			g := grid.New(cols, rows)
			inputChannel := fmt.Sprintf("session-%s/pane-%s/input", sessionID, paneID)
			outputChannel := fmt.Sprintf("session-%s/pane-%s/output", sessionID, paneID)

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			rt := headless.New(p, g, client, inputChannel, outputChannel, headless.Config{
				Logger:          logger,
				ActivityLogPath: activityLogPath,
			})

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if attach {
				if restore, err := attachLocalEcho(ctx, p, g, os.Stdin, os.Stdout); err != nil {
					diag.Printf("local-echo attach unavailable: %v", err)
				} else {
					defer restore()
				}
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return rt.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&server, "server", "127.0.0.1:6379", "Broker address")
	cmd.Flags().StringVar(&token, "token", "", "Auth token (overrides --token-file)")
	cmd.Flags().StringVar(&tokenPath, "token-file", "", "Path to the persistent auth token (default ~/.ptybroker/broker.token)")
	cmd.Flags().StringVar(&sessionName, "session", "", "Existing session id; without --pane a new pane with a generated name is created in it (never used as a new session's name; unset creates a new session)")
	cmd.Flags().StringVar(&paneName, "pane", "", "Existing pane id within --session to drive; no pane is created (ignored without --session)")
	cmd.Flags().StringVar(&shell, "shell", ptyadapter.DefaultShell(), "Shell to spawn")
	cmd.Flags().StringVar(&shellArgs, "shell-args", "", "Extra shell arguments, shell-quoted (e.g. \"-l -c 'tmux new'\")")
	cmd.Flags().IntVar(&cols, "cols", 0, "Terminal width (default: detected from stdin, or 80)")
	cmd.Flags().IntVar(&rows, "rows", 0, "Terminal height (default: detected from stdin, or 24)")
	cmd.Flags().StringVar(&activityLogPath, "activity-log", "", "Optional path to append JSON-Lines idle/activity events")
	cmd.Flags().BoolVar(&attach, "attach", false, "Mirror the pane locally in raw mode while also driving the broker loop")

	return cmd
}

// diagPrinter writes diagnostics to w, colored when w is a real terminal
// (including Cygwin-style consoles) rather than a pipe or log file.
type diagPrinter struct {
	w           *os.File
	color       bool
	interactive bool
}

func newDiagPrinter(w *os.File) *diagPrinter {
	d := &diagPrinter{w: w}
	if w != nil {
		fd := w.Fd()
		d.color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	d.interactive = isatty.IsTerminal(os.Stdin.Fd())
	return d
}

func (d *diagPrinter) Printf(format string, args ...any) {
	if d.w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if d.color {
		fmt.Fprintf(d.w, "\x1b[33m%s\x1b[0m\n", msg)
		return
	}
	fmt.Fprintln(d.w, msg)
}

// localRenderInterval is how often attachLocalEcho repaints the pane
// locally. It is independent of the headless runtime's quantum: the
// runtime's own DirtySnapshot is consumed exclusively by the publish path
// (see internal/headless), so the local mirror re-reads the grid's whole
// visible surface on its own schedule instead of racing for dirty state.
const localRenderInterval = 50 * time.Millisecond

// attachLocalEcho puts the local terminal into raw mode, forwards its
// keystrokes straight to the PTY, and mirrors the pane's grid onto stdout
// so a --attach user sees the shell they're driving. The mirror is read-
// only against g (Grid's operations are internally synchronized) and has
// no effect on what remote subscribers see: that still flows only through
// the broker loop's publish path. Returns a restore func, or an error if
// stdin isn't a real terminal.
func attachLocalEcho(ctx context.Context, p *ptyadapter.Pty, g *grid.Grid, stdin *os.File, stdout *os.File) (func(), error) {
	if !isatty.IsTerminal(stdin.Fd()) {
		return nil, fmt.Errorf("stdin is not a terminal")
	}

	oldState, err := term.MakeRaw(int(stdin.Fd()))
	if err != nil {
		return nil, err
	}

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := stdin.Read(buf)
			if n > 0 {
				if _, werr := p.Write(buf[:n]); werr != nil {
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	go renderLoop(ctx, g, stdout)

	return func() { term.Restore(int(stdin.Fd()), oldState) }, nil
}

// renderLoop repaints the local terminal from g's visible rows on a fixed
// interval until ctx is cancelled.
func renderLoop(ctx context.Context, g *grid.Grid, stdout *os.File) {
	ticker := time.NewTicker(localRenderInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			paintGrid(g, stdout)
		}
	}
}

// paintGrid clears the screen and draws every visible row, styled, at its
// row position, then restores the cursor to the grid's current position.
func paintGrid(g *grid.Grid, stdout *os.File) {
	rows := g.Rows()
	x, y := g.Cursor()
	var sb strings.Builder
	sb.WriteString("\x1b[H")
	for row := 0; row < rows; row++ {
		sb.WriteString("\x1b[K")
		sb.WriteString(grid.RenderRow(g.RowCells(row)))
		if row < rows-1 {
			sb.WriteString("\r\n")
		}
	}
	fmt.Fprintf(&sb, "\x1b[%d;%dH", y+1, x+1)
	stdout.WriteString(sb.String())
}

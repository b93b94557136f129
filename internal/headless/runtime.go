package headless

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ptybroker/internal/eventlog"
	"ptybroker/internal/grid"
	"ptybroker/internal/ptyadapter"
	"ptybroker/internal/vtparser"
)

// idleThreshold is how long a pane must go without output before the
// runtime records it as idle in the activity log. Purely observational:
// it never affects delivery ordering or back-pressure.
const idleThreshold = 2 * time.Second

// DefaultQuantum is the polling quantum T between event loop iterations.
const DefaultQuantum = 10 * time.Millisecond

// DefaultDrainBudget is K, the maximum input messages drained from the
// broker per quantum.
const DefaultDrainBudget = 64

// Config configures a Runtime. Zero values take the package defaults.
type Config struct {
	Quantum     time.Duration
	DrainBudget int
	Logger      *slog.Logger

	// ActivityLogPath, if non-empty, enables JSON-Lines idle/activity
	// tracking for this pane (see idleThreshold).
	ActivityLogPath string
}

// Runtime binds a local PTY + parser + grid triple to a remote Client,
// running a single-threaded cooperative event loop: each quantum it reads
// available PTY output, publishes newly dirty lines, then drains pending
// input messages and writes them to the PTY.
type Runtime struct {
	pty    *ptyadapter.Pty
	parser *vtparser.Parser
	grid   *grid.Grid
	client Client

	inputChannel  string
	outputChannel string

	quantum     time.Duration
	drainBudget int
	log         *slog.Logger
	events      *eventlog.Logger

	ptyOutput  chan []byte
	ptyErr     chan error
	lastOutput time.Time
	idle       bool
}

// New constructs a Runtime around an already-spawned Pty, a Grid of
// matching dimensions, and a Client already subscribed to nothing — the
// Runtime itself issues the Subscribe call for inputChannel before Run
// starts draining it.
func New(p *ptyadapter.Pty, g *grid.Grid, client Client, inputChannel, outputChannel string, cfg Config) *Runtime {
	quantum := cfg.Quantum
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	budget := cfg.DrainBudget
	if budget <= 0 {
		budget = DefaultDrainBudget
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	events := eventlog.Nop()
	if cfg.ActivityLogPath != "" {
		events = eventlog.New(true, cfg.ActivityLogPath, "headless", outputChannel)
	}

	r := &Runtime{
		pty:           p,
		grid:          g,
		client:        client,
		inputChannel:  inputChannel,
		outputChannel: outputChannel,
		quantum:       quantum,
		drainBudget:   budget,
		log:           logger,
		events:        events,
		ptyOutput:     make(chan []byte, 64),
		ptyErr:        make(chan error, 1),
		lastOutput:    time.Now(),
	}
	r.parser = vtparser.New(g)
	return r
}

// Run subscribes to the pane's input channel and runs the event loop until
// ctx is cancelled or the child exits / the PTY errors, whichever comes
// first. When the loop ends it performs the graceful-shutdown sequence: stop
// pulling new work, flush remaining output, hang up the PTY, and close
// the Client.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.client.Subscribe(r.inputChannel); err != nil {
		return fmt.Errorf("headless: subscribe %s: %w", r.inputChannel, err)
	}

	go r.readPTYLoop()

	ticker := time.NewTicker(r.quantum)
	defer ticker.Stop()

	var runErr error
loop:
	for {
		select {
		case <-ctx.Done():
			runErr = ctx.Err()
			break loop
		case err := <-r.ptyErr:
			runErr = err
			break loop
		case <-ticker.C:
			r.quantumStep()
		}
	}

	r.flushOutput()
	r.pty.Hangup()
	r.client.Close()
	r.events.Close()
	return runErr
}

// readPTYLoop runs on its own goroutine, continuously issuing blocking
// PTY reads and forwarding the bytes (or the terminal error) to the event
// loop's channels. This gives the cooperative loop a non-blocking "read
// if available" primitive despite os.File not supporting read deadlines.
func (r *Runtime) readPTYLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := r.pty.Read(buf)
		if n > 0 {
			cp := make([]byte, n)
			copy(cp, buf[:n])
			r.ptyOutput <- cp
		}
		if err != nil {
			r.ptyErr <- err
			return
		}
		if n == 0 {
			r.ptyErr <- fmt.Errorf("headless: pty closed")
			return
		}
	}
}

// quantumStep runs one iteration of the loop body: drain available PTY
// output into the parser, publish newly dirty lines, then drain up to
// drainBudget pending input messages into the PTY. Publication happens
// strictly before the input drain so a quantum's output is never
// interleaved, from an external subscriber's view, with that same
// quantum's input writes.
func (r *Runtime) quantumStep() {
	r.drainPTYOutput()
	r.publishDirty()
	r.drainInput()
	r.checkIdle()
}

func (r *Runtime) drainPTYOutput() {
	for {
		select {
		case b := <-r.ptyOutput:
			r.lastOutput = time.Now()
			r.parser.Feed(b)
		default:
			return
		}
	}
}

// checkIdle records a state_change event on the activity log whenever the
// pane crosses idleThreshold in either direction. Purely observational.
func (r *Runtime) checkIdle() {
	idleNow := time.Since(r.lastOutput) > idleThreshold
	if idleNow == r.idle {
		return
	}
	from, to := "active", "idle"
	if r.idle {
		from, to = "idle", "active"
	}
	r.events.Emit("state_change", map[string]any{"from": from, "to": to})
	r.idle = idleNow
}

// publishDirty converts the grid's dirty snapshot into line publications
// on outputChannel. A fully-dirty grid (e.g. after resize or a scroll
// region sized to the whole screen) publishes every non-blank visible
// line; a sparse dirty set publishes exactly the touched rows.
func (r *Runtime) publishDirty() {
	coords, all := r.grid.DirtySnapshot()
	rows := r.grid.VisibleText()

	if all {
		for _, line := range rows {
			if line == "" {
				continue
			}
			r.publishLine(line)
		}
		return
	}

	touched := make(map[int]bool)
	for _, c := range coords {
		touched[c[1]] = true
	}
	// Deterministic order: ascending row index, matching a top-to-bottom
	// scan of the screen.
	for y := 0; y < len(rows); y++ {
		if touched[y] {
			r.publishLine(rows[y])
		}
	}
}

func (r *Runtime) publishLine(line string) {
	if _, err := r.client.Publish(r.outputChannel, line); err != nil {
		r.log.Warn("headless: publish failed, retrying next quantum", "channel", r.outputChannel, "error", err)
	}
}

// drainInput pops up to drainBudget pending messages from inputChannel and
// writes each payload verbatim to the PTY, in rpop order.
func (r *Runtime) drainInput() {
	for i := 0; i < r.drainBudget; i++ {
		payload, ok, err := r.client.Rpop(r.inputChannel)
		if err != nil {
			r.log.Warn("headless: rpop failed, retrying next quantum", "channel", r.inputChannel, "error", err)
			return
		}
		if !ok {
			return
		}
		if _, err := r.pty.Write([]byte(payload)); err != nil {
			r.log.Warn("headless: pty write failed", "error", err)
			return
		}
	}
}

// flushOutput performs one last drain-and-publish pass so bytes the child
// wrote right before shutdown aren't lost.
func (r *Runtime) flushOutput() {
	r.drainPTYOutput()
	r.publishDirty()
}

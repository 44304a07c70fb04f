// Package dispatch registers the command registry with every known chat and routes inbound
// invocations to their handlers behind a recover/timeout boundary.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/ohirun/internal/commands"
)

var (
	// ErrUnknownCommand is returned by Dispatch for a name missing from the registry.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrRegistrationInProgress is returned by RegisterGuild when another registration of the
	// same guild has not finished.
	ErrRegistrationInProgress = errors.New("registration already in progress")
	// ErrDraining is returned by Dispatch once Wait has been called.
	ErrDraining = errors.New("dispatcher is draining")
)

// HandlerError wraps a failure raised by a command handler, including a recovered panic.
type HandlerError struct {
	Command string
	Panic   bool
	Err     error

	stack []byte
}

func (e *HandlerError) Error() string {
	if e.Panic {
		return fmt.Sprintf("command %s panicked: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}

// Gateway is the chat platform surface needed for per-guild registration.
type Gateway interface {
	// Guilds lists the chats the bot currently belongs to.
	Guilds(ctx context.Context) ([]int64, error)
	// RegisteredCommands lists the names already registered in a guild.
	RegisteredCommands(ctx context.Context, guildID int64) ([]string, error)
	// RegisterCommand registers cmd in a guild and returns a platform registration id.
	RegisterCommand(ctx context.Context, guildID int64, cmd commands.Command) (string, error)
}

// GuildState is the registration state of one guild.
type GuildState int

const (
	Unregistered GuildState = iota
	Registering
	Registered
)

func (s GuildState) String() string {
	switch s {
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	default:
		return "unregistered"
	}
}

// Config bounds registration and handler execution and holds the two replies the dispatcher
// sends itself.
type Config struct {
	RegistrationTimeout     time.Duration
	RegistrationConcurrency int
	HandlerTimeout          time.Duration
	UnknownCommandMsg       string
	ErrorGeneralMsg         string
}

// Summary reports the outcome of RegisterAll.
type Summary struct {
	Guilds     int
	Registered int
	Skipped    int
	Failed     int
}

// Dispatcher owns per-guild registration state and the dispatch boundary.
type Dispatcher struct {
	registry *commands.Registry
	gateway  Gateway
	cfg      Config
	logger   *slog.Logger

	mu       sync.Mutex
	states   map[int64]GuildState
	draining bool

	// inflight is only added to under mu while not draining.
	inflight sync.WaitGroup
}

// New creates a dispatcher. Zero durations and concurrency fall back to sane defaults.
func New(registry *commands.Registry, gateway Gateway, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.RegistrationTimeout <= 0 {
		cfg.RegistrationTimeout = 15 * time.Second
	}
	if cfg.RegistrationConcurrency <= 0 {
		cfg.RegistrationConcurrency = 4
	}
	if cfg.HandlerTimeout <= 0 {
		cfg.HandlerTimeout = 30 * time.Second
	}

	return &Dispatcher{
		registry: registry,
		gateway:  gateway,
		cfg:      cfg,
		logger:   logger.With("component", "dispatcher"),
		states:   make(map[int64]GuildState),
	}
}

// Registry returns the command registry the dispatcher routes to.
func (d *Dispatcher) Registry() *commands.Registry {
	return d.registry
}

// State returns the registration state of a guild.
func (d *Dispatcher) State(guildID int64) GuildState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[guildID]
}

// RegisterAll registers missing commands in every guild. Guilds are processed concurrently up
// to the configured limit; a failing guild is logged and counted without affecting the others.
// The returned error is non-nil only when the guild list itself cannot be fetched.
func (d *Dispatcher) RegisterAll(ctx context.Context) (Summary, error) {
	guilds, err := d.gateway.Guilds(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to enumerate guilds: %w", err)
	}

	var (
		mu      sync.Mutex
		summary = Summary{Guilds: len(guilds)}
	)

	var g errgroup.Group
	g.SetLimit(d.cfg.RegistrationConcurrency)
	for _, guildID := range guilds {
		g.Go(func() error {
			n, err := d.RegisterGuild(ctx, guildID)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, ErrRegistrationInProgress):
				summary.Skipped++
			case err != nil:
				summary.Failed++
			default:
				summary.Registered += n
			}
			// Never fail the group: one guild must not cancel its siblings.
			return nil
		})
	}
	_ = g.Wait()

	d.logger.InfoContext(ctx, "Command registration finished",
		"guilds", summary.Guilds,
		"registered", summary.Registered,
		"skipped", summary.Skipped,
		"failed", summary.Failed)
	return summary, nil
}

// RegisterGuild registers the registry commands missing from one guild and returns how many
// were registered. A failed attempt leaves the guild in the state it had before.
func (d *Dispatcher) RegisterGuild(ctx context.Context, guildID int64) (int, error) {
	log := d.logger.With("guild_id", guildID)

	d.mu.Lock()
	prev := d.states[guildID]
	if prev == Registering {
		d.mu.Unlock()
		log.DebugContext(ctx, "Registration already in progress, skipping")
		return 0, ErrRegistrationInProgress
	}
	d.states[guildID] = Registering
	d.mu.Unlock()

	count, err := d.registerMissing(ctx, guildID)

	d.mu.Lock()
	if err != nil {
		d.states[guildID] = prev
	} else {
		d.states[guildID] = Registered
	}
	d.mu.Unlock()

	if err != nil {
		log.ErrorContext(ctx, "Failed to register commands in guild", "registered_before_failure", count, "error", err)
		return count, err
	}
	log.InfoContext(ctx, "Guild commands up to date", "registered", count)
	return count, nil
}

func (d *Dispatcher) registerMissing(ctx context.Context, guildID int64) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, d.cfg.RegistrationTimeout)
	defer cancel()

	existing, err := d.gateway.RegisteredCommands(ctx, guildID)
	if err != nil {
		return 0, fmt.Errorf("failed to list registered commands: %w", err)
	}
	have := make(map[string]struct{}, len(existing))
	for _, name := range existing {
		have[name] = struct{}{}
	}

	count := 0
	for _, cmd := range d.registry.List() {
		if _, ok := have[cmd.Name]; ok {
			continue
		}
		id, err := d.gateway.RegisterCommand(ctx, guildID, cmd)
		if err != nil {
			return count, fmt.Errorf("failed to register command %q: %w", cmd.Name, err)
		}
		d.logger.DebugContext(ctx, "Registered command", "guild_id", guildID, "command", cmd.Name, "registration_id", id)
		count++
	}
	return count, nil
}

// Dispatch routes inv to its handler. Unknown names get the unknown-command reply and
// ErrUnknownCommand. Handler errors and panics are logged, answered with the generic failure
// reply, and returned as *HandlerError. Handlers run detached from ctx's cancellation, bounded
// by the handler timeout, so shutdown does not interrupt a write in progress.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *commands.Invocation, r commands.Responder) error {
	log := d.logger.With(
		"command", inv.Name,
		"subcommand", inv.Subcommand,
		"invocation_id", inv.ID,
		"guild_id", inv.GuildID,
		"user_id", inv.UserID,
	)

	cmd, ok := d.registry.Lookup(inv.Name)
	if !ok {
		log.WarnContext(ctx, "Unknown command")
		if err := r.Respond(ctx, d.cfg.UnknownCommandMsg, true); err != nil {
			log.WarnContext(ctx, "Failed to send unknown command reply", "error", err)
		}
		return fmt.Errorf("%w: %s", ErrUnknownCommand, inv.Name)
	}

	if !d.begin() {
		log.WarnContext(ctx, "Dropping invocation received during shutdown")
		return ErrDraining
	}
	defer d.inflight.Done()

	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.HandlerTimeout)
	defer cancel()

	if err := r.Acknowledge(hctx); err != nil {
		log.WarnContext(hctx, "Failed to acknowledge invocation", "error", err)
	}

	start := time.Now()
	err := invoke(hctx, cmd, inv, r)
	duration := time.Since(start)
	if err == nil {
		log.DebugContext(hctx, "Command handled", "duration", duration)
		return nil
	}

	var hErr *HandlerError
	if errors.As(err, &hErr) && hErr.Panic {
		log.ErrorContext(hctx, "Command handler panicked", "error", hErr.Err, "duration", duration, "stack", string(hErr.stack))
	} else {
		log.ErrorContext(hctx, "Command handler failed", "error", err, "duration", duration)
	}

	if rErr := r.Respond(hctx, d.cfg.ErrorGeneralMsg, true); rErr != nil {
		log.ErrorContext(hctx, "Failed to send failure reply", "error", rErr)
	}

	if hErr == nil {
		hErr = &HandlerError{Command: cmd.Name, Err: err}
	}
	return hErr
}

// begin counts a handler run in flight. It reports false once draining has started.
func (d *Dispatcher) begin() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.draining {
		return false
	}
	d.inflight.Add(1)
	return true
}

// Wait stops accepting new handler runs and blocks until in-flight handlers finish or ctx is
// done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	d.mu.Lock()
	d.draining = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func invoke(ctx context.Context, cmd commands.Command, inv *commands.Invocation, r commands.Responder) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &HandlerError{Command: cmd.Name, Panic: true, Err: fmt.Errorf("%v", p), stack: debug.Stack()}
		}
	}()
	return cmd.Handler(ctx, inv, r)
}

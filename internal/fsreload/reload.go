// Package fsreload asks a running FreeSWITCH to re-read its XML configuration.
//
// A reload is never fatal to the caller: when the switch is not running the
// result is StatusSkipped, and when every command variant fails it is
// StatusFailed with the last error attached.
package fsreload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"pbx-admin/internal/metrics"
)

type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

var (
	DefaultProbe    = []string{"pgrep", "-x", "freeswitch"}
	DefaultCommands = [][]string{
		{"fs_cli", "-x", "reloadxml"},
		{"/usr/local/freeswitch/bin/fs_cli", "-x", "reloadxml"},
		{"/usr/bin/fs_cli", "-x", "reloadxml"},
	}
)

const (
	DefaultTimeout         = 10 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = time.Minute
)

var (
	ErrNotRunning = errors.New("freeswitch is not running")
	ErrNoCommands = errors.New("no reload command configured")
)

// Result is the outcome of one Reload.
type Result struct {
	Status  Status `json:"status"`
	Variant string `json:"variant,omitempty"`
	Err     error  `json:"-"`
}

// Message is a one-line description suitable for a warning list.
func (r Result) Message() string {
	switch r.Status {
	case StatusOK:
		return "reloaded with " + r.Variant
	case StatusSkipped:
		return "reload skipped: freeswitch is not running"
	default:
		if r.Err != nil {
			return "reload failed: " + r.Err.Error()
		}
		return "reload failed"
	}
}

type Options struct {
	// Probe exits zero when the switch process is running.
	Probe []string
	// Commands are tried in order until one exits zero.
	Commands [][]string
	// Timeout bounds each command attempt, probe included.
	Timeout time.Duration
	// MinInterval spaces consecutive reloads. Zero disables throttling.
	MinInterval time.Duration
	// BreakerFailures consecutive failed reloads open the breaker for
	// BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

func (o *Options) applyDefaults() {
	if len(o.Probe) == 0 {
		o.Probe = DefaultProbe
	}
	if len(o.Commands) == 0 {
		o.Commands = DefaultCommands
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.BreakerFailures == 0 {
		o.BreakerFailures = DefaultBreakerFailures
	}
	if o.BreakerCooldown <= 0 {
		o.BreakerCooldown = DefaultBreakerCooldown
	}
}

// Client issues reload commands through a circuit breaker.
type Client struct {
	opts    Options
	runner  Runner
	cb      *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
}

// New builds a Client. A nil runner means ExecRunner.
func New(opts Options, runner Runner) *Client {
	opts.applyDefaults()
	if runner == nil {
		runner = ExecRunner{}
	}

	c := &Client{opts: opts, runner: runner}
	if opts.MinInterval > 0 {
		c.limiter = rate.NewLimiter(rate.Every(opts.MinInterval), 1)
	}

	metrics.ReloadBreakerState.Set(stateToFloat(gobreaker.StateClosed))
	failures := opts.BreakerFailures
	c.cb = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "freeswitch-reload",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// A caller giving up is not a switch failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("reload circuit breaker state change",
				"breaker", name, "from", from.String(), "to", to.String())
			metrics.ReloadBreakerState.Set(stateToFloat(to))
		},
	})
	return c
}

// IsRunning runs the probe command. Any error counts as not running.
func (c *Client) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	_, err := c.runner.Run(ctx, c.opts.Probe[0], c.opts.Probe[1:]...)
	return err == nil
}

// Reload applies the on-disk configuration. It blocks for at most
// len(Commands) attempts of Timeout each, plus any throttle wait.
func (c *Client) Reload(ctx context.Context) Result {
	start := time.Now()
	res := c.reload(ctx)

	metrics.ReloadDuration.Observe(time.Since(start).Seconds())
	metrics.Reloads.WithLabelValues(string(res.Status)).Inc()

	switch res.Status {
	case StatusOK:
		slog.Info("freeswitch reloaded", "variant", res.Variant, "duration", time.Since(start))
	case StatusSkipped:
		slog.Warn("freeswitch reload skipped", "reason", "not running")
	default:
		slog.Warn("freeswitch reload failed", "error", res.Err)
	}
	return res
}

func (c *Client) reload(ctx context.Context) Result {
	if !c.IsRunning(ctx) {
		return Result{Status: StatusSkipped, Err: ErrNotRunning}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Result{Status: StatusFailed, Err: fmt.Errorf("reload throttle: %w", err)}
		}
	}

	variant, err := c.cb.Execute(func() (string, error) {
		return c.tryVariants(ctx)
	})
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}
	return Result{Status: StatusOK, Variant: variant}
}

func (c *Client) tryVariants(ctx context.Context) (string, error) {
	if len(c.opts.Commands) == 0 {
		return "", ErrNoCommands
	}

	var lastErr error
	for _, cmd := range c.opts.Commands {
		if len(cmd) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		variant := strings.Join(cmd, " ")
		out, err := c.attempt(ctx, cmd)
		if err == nil {
			return variant, nil
		}

		lastErr = fmt.Errorf("%s: %w", variant, err)
		slog.Debug("reload variant failed", "variant", variant, "error", err,
			"output", strings.TrimSpace(string(out)))
	}
	if lastErr == nil {
		return "", ErrNoCommands
	}
	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, cmd []string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	out, err := c.runner.Run(actx, cmd[0], cmd[1:]...)
	if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return out, fmt.Errorf("timed out after %s: %w", c.opts.Timeout, context.DeadlineExceeded)
	}
	return out, err
}

// BreakerState reports the breaker as closed, half-open or open.
func (c *Client) BreakerState() string {
	return c.cb.State().String()
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

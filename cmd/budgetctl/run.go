package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/example/budget-event-sourced/config"
	"github.com/example/budget-event-sourced/internal/app"
	"github.com/example/budget-event-sourced/internal/command"
	"github.com/example/budget-event-sourced/internal/logging"
	"github.com/example/budget-event-sourced/internal/query"
)

const (
	typeEnvelope   = "envelope"
	typeBudgetPlan = "budget-plan"
	typeLedger     = "ledger"
	typeUser       = "user"
)

var errUsage = errors.New("usage: budgetctl commands | exec <command> | rewind | replay | show")

type cli struct {
	cfg    *config.Config
	logger zerolog.Logger
	stdin  io.Reader
	stdout io.Writer
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.New()
	if err != nil {
		return err
	}
	c := &cli{
		cfg: cfg,
		logger: logging.Component(logging.New(logging.Config{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
		}), "budgetctl"),
		stdin:  stdin,
		stdout: stdout,
	}

	switch args[0] {
	case "commands":
		_, err := fmt.Fprintln(stdout, strings.Join(command.Names(), "\n"))
		return err
	case "exec":
		return c.exec(ctx, args[1:])
	case "rewind":
		return c.rewind(ctx, args[1:])
	case "replay":
		return c.replay(ctx, args[1:])
	case "show":
		return c.show(ctx, args[1:])
	default:
		return fmt.Errorf("%w: unknown subcommand %q", errUsage, args[0])
	}
}

// withCommands opens the write side for the duration of fn.
func (c *cli) withCommands(ctx context.Context, fn func(h *command.Handler) (any, error)) error {
	backend, err := app.OpenBackend(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer backend.Close()

	result, err := fn(backend.CommandHandler(c.cfg, c.logger, nil))
	if err != nil {
		return err
	}
	return c.print(result)
}

func (c *cli) exec(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: exec takes one command name, see budgetctl commands", errUsage)
	}
	payload, err := io.ReadAll(c.stdin)
	if err != nil {
		return fmt.Errorf("read command payload: %w", err)
	}
	return c.withCommands(ctx, func(h *command.Handler) (any, error) {
		return h.Execute(ctx, args[0], payload)
	})
}

// execute runs cmd through the same path as exec.
func (c *cli) execute(ctx context.Context, name string, cmd any) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.withCommands(ctx, func(h *command.Handler) (any, error) {
		return h.Execute(ctx, name, payload)
	})
}

type target struct {
	kind   string
	id     string
	userID string
}

func targetFlags(name string, kinds string) (*flag.FlagSet, *target) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	t := &target{}
	fs.StringVar(&t.kind, "type", typeEnvelope, kinds)
	fs.StringVar(&t.id, "id", "", "aggregate id")
	fs.StringVar(&t.userID, "user", "", "owner user id")
	return fs, t
}

func (c *cli) rewind(ctx context.Context, args []string) error {
	fs, t := targetFlags("rewind", "envelope or budget-plan")
	at := fs.String("at", "", "instant to rewind to, RFC 3339")
	fs.SetOutput(c.stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}
	desired, err := time.Parse(time.RFC3339Nano, *at)
	if err != nil {
		return fmt.Errorf("%w: -at: %v", errUsage, err)
	}

	requestID := uuid.NewString()
	switch t.kind {
	case typeEnvelope:
		return c.execute(ctx, "RewindEnvelope", command.RewindEnvelope{EnvelopeID: t.id, UserID: t.userID, RequestID: requestID, DesiredDateTime: desired})
	case typeBudgetPlan:
		return c.execute(ctx, "RewindBudgetPlan", command.RewindBudgetPlan{BudgetPlanID: t.id, UserID: t.userID, RequestID: requestID, DesiredDateTime: desired})
	default:
		return fmt.Errorf("%w: cannot rewind %q", errUsage, t.kind)
	}
}

func (c *cli) replay(ctx context.Context, args []string) error {
	fs, t := targetFlags("replay", "envelope or budget-plan")
	fs.SetOutput(c.stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}

	requestID := uuid.NewString()
	switch t.kind {
	case typeEnvelope:
		return c.execute(ctx, "ReplayEnvelope", command.ReplayEnvelope{EnvelopeID: t.id, UserID: t.userID, RequestID: requestID})
	case typeBudgetPlan:
		return c.execute(ctx, "ReplayBudgetPlan", command.ReplayBudgetPlan{BudgetPlanID: t.id, UserID: t.userID, RequestID: requestID})
	default:
		return fmt.Errorf("%w: cannot replay %q", errUsage, t.kind)
	}
}

func (c *cli) show(ctx context.Context, args []string) error {
	fs, t := targetFlags("show", "envelope, ledger, budget-plan or user")
	fs.SetOutput(c.stdout)
	if err := fs.Parse(args); err != nil {
		return err
	}

	readSide, err := app.OpenReadSide(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer readSide.Close()
	q := query.NewHandler(readSide.Repositories, c.logger)

	var result any
	switch t.kind {
	case typeEnvelope:
		if t.id == "" {
			result, err = q.ListEnvelopes(ctx, t.userID)
		} else {
			result, err = q.GetEnvelope(ctx, t.userID, t.id)
		}
	case typeLedger:
		result, err = q.GetEnvelopeDetails(ctx, t.userID, t.id)
	case typeBudgetPlan:
		if t.id == "" {
			result, err = q.ListBudgetPlans(ctx, t.userID)
		} else {
			result, err = q.GetBudgetPlan(ctx, t.userID, t.id)
		}
	case typeUser:
		result, err = q.GetUser(ctx, t.userID)
	default:
		return fmt.Errorf("%w: cannot show %q", errUsage, t.kind)
	}
	if err != nil {
		return err
	}
	return c.print(result)
}

func (c *cli) print(v any) error {
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(c.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

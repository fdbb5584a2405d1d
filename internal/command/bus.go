package command

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

// ErrUnknownCommand is returned by Execute for a name no handler is bound to.
var ErrUnknownCommand = errors.New("unknown command")

type executor func(ctx context.Context, h *Handler, payload []byte) (any, error)

// personalData is implemented by aggregates. After a command, fields loaded
// from the store are still sealed while fields set by the command are not, so
// Execute reports the aggregate without them.
type personalData interface {
	WithoutPersonalData() any
}

// bind decodes a JSON payload into C and runs fn. Unknown fields are rejected.
func bind[C any, R any](fn func(h *Handler, ctx context.Context, cmd C) (R, error)) executor {
	return func(ctx context.Context, h *Handler, payload []byte) (any, error) {
		var cmd C
		if err := decodeStrict(payload, &cmd); err != nil {
			return nil, err
		}
		result, err := fn(h, ctx, cmd)
		if err != nil {
			return nil, err
		}
		if pd, ok := any(result).(personalData); ok {
			return pd.WithoutPersonalData(), nil
		}
		return result, nil
	}
}

func bindNoResult[C any](fn func(h *Handler, ctx context.Context, cmd C) error) executor {
	return func(ctx context.Context, h *Handler, payload []byte) (any, error) {
		var cmd C
		if err := decodeStrict(payload, &cmd); err != nil {
			return nil, err
		}
		return nil, fn(h, ctx, cmd)
	}
}

var executors = map[string]executor{
	"AddEnvelope":                  bind((*Handler).AddEnvelope),
	"CreditEnvelope":               bind((*Handler).CreditEnvelope),
	"DebitEnvelope":                bind((*Handler).DebitEnvelope),
	"RenameEnvelope":               bind((*Handler).RenameEnvelope),
	"ChangeEnvelopeTargetedAmount": bind((*Handler).ChangeEnvelopeTargetedAmount),
	"DeleteEnvelope":               bindNoResult((*Handler).DeleteEnvelope),
	"RewindEnvelope":               bind((*Handler).RewindEnvelope),
	"ReplayEnvelope":               bind((*Handler).ReplayEnvelope),
	"GenerateBudgetPlan":           bind((*Handler).GenerateBudgetPlan),
	"AddBudgetPlanEntry":           bind((*Handler).AddBudgetPlanEntry),
	"AdjustBudgetPlanEntry":        bind((*Handler).AdjustBudgetPlanEntry),
	"RemoveBudgetPlanEntry":        bind((*Handler).RemoveBudgetPlanEntry),
	"ChangeBudgetPlanCurrency":     bind((*Handler).ChangeBudgetPlanCurrency),
	"RemoveBudgetPlan":             bindNoResult((*Handler).RemoveBudgetPlan),
	"RewindBudgetPlan":             bind((*Handler).RewindBudgetPlan),
	"ReplayBudgetPlan":             bind((*Handler).ReplayBudgetPlan),
	"SignUp":                       bind((*Handler).SignUp),
	"ChangeUserName":               bind((*Handler).ChangeUserName),
	"ChangeUserLanguagePreference": bind((*Handler).ChangeUserLanguagePreference),
	"EraseUser":                    bindNoResult((*Handler).EraseUser),
}

// Names lists the commands Execute accepts, sorted.
func Names() []string {
	return slices.Sorted(maps.Keys(executors))
}

// Execute decodes payload as the JSON form of the named command and runs it.
// The result is the aggregate state after the command without its personal
// data fields, or nil for commands that return none.
func (h *Handler) Execute(ctx context.Context, name string, payload []byte) (any, error) {
	exec, ok := executors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return exec(ctx, h, payload)
}

func decodeStrict(payload []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCommand, err)
	}
	return nil
}

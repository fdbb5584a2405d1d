package command

import (
	"context"

	"github.com/example/budget-event-sourced/internal/domain/budgetplan"
	"github.com/example/budget-event-sourced/internal/domain/envelope"
	"github.com/example/budget-event-sourced/internal/domain/money"
	"github.com/example/budget-event-sourced/internal/domain/user"
)

// Handler validates commands and runs them against the domain services. Read
// models are updated asynchronously by the projector.
type Handler struct {
	envelopeSvc *envelope.Service
	planSvc     *budgetplan.Service
	userSvc     *user.Service
}

func NewHandler(envelopeSvc *envelope.Service, planSvc *budgetplan.Service, userSvc *user.Service) *Handler {
	return &Handler{
		envelopeSvc: envelopeSvc,
		planSvc:     planSvc,
		userSvc:     userSvc,
	}
}

// AddEnvelope creates an envelope with a zero current amount
func (h *Handler) AddEnvelope(ctx context.Context, cmd AddEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	target, err := money.ParsePositive(cmd.TargetedAmount)
	if err != nil {
		return nil, err
	}
	return h.envelopeSvc.Add(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, cmd.Name, target, cmd.Currency)
}

func (h *Handler) CreditEnvelope(ctx context.Context, cmd CreditEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	amount, err := money.ParsePositive(cmd.Amount)
	if err != nil {
		return nil, err
	}
	return h.envelopeSvc.Credit(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, amount, cmd.Description)
}

func (h *Handler) DebitEnvelope(ctx context.Context, cmd DebitEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	amount, err := money.ParsePositive(cmd.Amount)
	if err != nil {
		return nil, err
	}
	return h.envelopeSvc.Debit(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, amount, cmd.Description)
}

func (h *Handler) RenameEnvelope(ctx context.Context, cmd RenameEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.envelopeSvc.Rename(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, cmd.Name)
}

func (h *Handler) ChangeEnvelopeTargetedAmount(ctx context.Context, cmd ChangeEnvelopeTargetedAmount) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	target, err := money.ParsePositive(cmd.TargetedAmount)
	if err != nil {
		return nil, err
	}
	return h.envelopeSvc.ChangeTargetedAmount(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, target)
}

func (h *Handler) DeleteEnvelope(ctx context.Context, cmd DeleteEnvelope) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	_, err := h.envelopeSvc.Delete(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID)
	return err
}

func (h *Handler) RewindEnvelope(ctx context.Context, cmd RewindEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.envelopeSvc.Rewind(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID, cmd.DesiredDateTime)
}

func (h *Handler) ReplayEnvelope(ctx context.Context, cmd ReplayEnvelope) (*envelope.Envelope, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.envelopeSvc.Replay(ctx, cmd.EnvelopeID, cmd.UserID, cmd.RequestID)
}

// GenerateBudgetPlan creates the plan of one month with its initial entries
func (h *Handler) GenerateBudgetPlan(ctx context.Context, cmd GenerateBudgetPlan) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	entries := make([]budgetplan.NewEntry, 0, len(cmd.Entries))
	for _, e := range cmd.Entries {
		entry, err := toNewEntry(e)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return h.planSvc.Generate(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, cmd.Date, cmd.Currency, entries)
}

func (h *Handler) AddBudgetPlanEntry(ctx context.Context, cmd AddBudgetPlanEntry) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	entry, err := toNewEntry(cmd.Entry)
	if err != nil {
		return nil, err
	}
	return h.planSvc.AddEntry(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, entry)
}

func (h *Handler) AdjustBudgetPlanEntry(ctx context.Context, cmd AdjustBudgetPlanEntry) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	amount, err := money.ParsePositive(cmd.Amount)
	if err != nil {
		return nil, err
	}
	return h.planSvc.AdjustEntry(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, cmd.EntryID, cmd.Name, amount, cmd.Category)
}

func (h *Handler) RemoveBudgetPlanEntry(ctx context.Context, cmd RemoveBudgetPlanEntry) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.planSvc.RemoveEntry(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, cmd.EntryID)
}

func (h *Handler) ChangeBudgetPlanCurrency(ctx context.Context, cmd ChangeBudgetPlanCurrency) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.planSvc.ChangeCurrency(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, cmd.Currency)
}

func (h *Handler) RemoveBudgetPlan(ctx context.Context, cmd RemoveBudgetPlan) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	_, err := h.planSvc.Remove(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID)
	return err
}

func (h *Handler) RewindBudgetPlan(ctx context.Context, cmd RewindBudgetPlan) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.planSvc.Rewind(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID, cmd.DesiredDateTime)
}

func (h *Handler) ReplayBudgetPlan(ctx context.Context, cmd ReplayBudgetPlan) (*budgetplan.BudgetPlan, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.planSvc.Replay(ctx, cmd.BudgetPlanID, cmd.UserID, cmd.RequestID)
}

// SignUp creates the user and its encryption key
func (h *Handler) SignUp(ctx context.Context, cmd SignUp) (*user.User, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.userSvc.SignUp(ctx, cmd.UserID, cmd.RequestID, cmd.Email, cmd.Firstname, cmd.Lastname, cmd.LanguagePreference)
}

func (h *Handler) ChangeUserName(ctx context.Context, cmd ChangeUserName) (*user.User, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.userSvc.ChangeName(ctx, cmd.UserID, cmd.RequestID, cmd.Firstname, cmd.Lastname)
}

func (h *Handler) ChangeUserLanguagePreference(ctx context.Context, cmd ChangeUserLanguagePreference) (*user.User, error) {
	if err := Validate(cmd); err != nil {
		return nil, err
	}
	return h.userSvc.ChangeLanguagePreference(ctx, cmd.UserID, cmd.RequestID, cmd.LanguagePreference)
}

// EraseUser deletes the user's key; the user's personal data becomes unreadable
func (h *Handler) EraseUser(ctx context.Context, cmd EraseUser) error {
	if err := Validate(cmd); err != nil {
		return err
	}
	return h.userSvc.Erase(ctx, cmd.UserID, cmd.RequestID)
}

func toNewEntry(e BudgetPlanEntry) (budgetplan.NewEntry, error) {
	amount, err := money.ParsePositive(e.Amount)
	if err != nil {
		return budgetplan.NewEntry{}, err
	}
	return budgetplan.NewEntry{
		ID:       e.EntryID,
		Kind:     budgetplan.Kind(e.Kind),
		Name:     e.Name,
		Amount:   amount,
		Category: e.Category,
	}, nil
}

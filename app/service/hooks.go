package service

import (
	"context"
	"fmt"

	"github.com/vibast-solutions/ms-go-accounts/app/entity"
)

type Transition string

const (
	TransitionCreateAccount        Transition = "create_account"
	TransitionVerifyAccount        Transition = "verify_account"
	TransitionLogin                Transition = "login"
	TransitionLogout               Transition = "logout"
	TransitionRequestPasswordReset Transition = "request_password_reset"
	TransitionResetPassword        Transition = "reset_password"
	TransitionChangePassword       Transition = "change_password"
	TransitionCloseAccount         Transition = "close_account"
)

type HookPhase string

const (
	HookPhaseBefore HookPhase = "before"
	HookPhaseAfter  HookPhase = "after"
)

type HookContext struct {
	Transition Transition
	Phase      HookPhase
	Account    *entity.Account
}

// Hook runs inside the transition's transaction. Returning an error aborts
// the transition and rolls back its writes.
//
// With the memory store the store mutex is held while hooks run. A hook that
// calls back into the service, or makes any store call outside the running
// transaction, deadlocks.
type Hook func(ctx context.Context, hc HookContext) error

// Hooks holds the callbacks registered per transition, run in registration
// order. Register everything before the service starts serving.
type Hooks struct {
	before map[Transition][]Hook
	after  map[Transition][]Hook
}

func NewHooks() *Hooks {
	return &Hooks{
		before: make(map[Transition][]Hook),
		after:  make(map[Transition][]Hook),
	}
}

func (h *Hooks) Before(t Transition, hook Hook) *Hooks {
	h.before[t] = append(h.before[t], hook)
	return h
}

func (h *Hooks) After(t Transition, hook Hook) *Hooks {
	h.after[t] = append(h.after[t], hook)
	return h
}

func (h *Hooks) runBefore(ctx context.Context, t Transition, account *entity.Account) error {
	return h.run(ctx, HookPhaseBefore, t, account)
}

func (h *Hooks) runAfter(ctx context.Context, t Transition, account *entity.Account) error {
	return h.run(ctx, HookPhaseAfter, t, account)
}

func (h *Hooks) run(ctx context.Context, phase HookPhase, t Transition, account *entity.Account) error {
	if h == nil {
		return nil
	}

	hooks := h.before[t]
	if phase == HookPhaseAfter {
		hooks = h.after[t]
	}

	for idx, hook := range hooks {
		hc := HookContext{Transition: t, Phase: phase, Account: account}
		if err := hook(ctx, hc); err != nil {
			return fmt.Errorf("%s %s hook #%d: %w", phase, t, idx, err)
		}
	}
	return nil
}

package call

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashwinrayaprolu/web-communication-platform/internal/database"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/database/models"
	"github.com/ashwinrayaprolu/web-communication-platform/internal/signaling"
)

// Prompter renders spoken prompts on an endpoint. *tts.Speaker
// implements it. Prompt failures degrade inside the prompter and never
// surface here; a prompt is never fatal to the call.
type Prompter interface {
	Speak(ctx context.Context, ep signaling.Endpoint, text string)
	PlayFile(ctx context.Context, ep signaling.Endpoint, resource string)
}

// TransferFunc hands a caller off to a destination once the IVR
// resolves a transfer action. When nil, the engine announces the
// transfer and leaves the caller parked (announce-only mode).
type TransferFunc func(ctx context.Context, sess *Session, ep signaling.Endpoint, dest string) error

// IVRConfig carries the dialog engine's policy knobs.
type IVRConfig struct {
	// EntryMenu is the menu entered when a call reaches the IVR.
	EntryMenu string

	// MaxInvalid caps consecutive invalid digit entries. When the
	// caller exhausts it the engine says goodbye and hangs up.
	MaxInvalid int

	// StrictMenus controls the missing-menu behavior: strict mode
	// speaks an error and hangs up; lax mode logs and leaves the
	// dialog state unchanged.
	StrictMenus bool
}

// IVREngine is the per-call menu/prompt/DTMF dialog state machine.
// Dialog state (current menu, invalid-entry counter) lives on the
// Session; the engine itself is stateless and shared by all calls.
type IVREngine struct {
	menus    database.MenuRepository
	prompter Prompter
	transfer TransferFunc
	cfg      IVRConfig
	logger   *slog.Logger
}

// NewIVREngine creates the dialog engine. transfer may be nil.
func NewIVREngine(menus database.MenuRepository, prompter Prompter, transfer TransferFunc, cfg IVRConfig, logger *slog.Logger) *IVREngine {
	if cfg.MaxInvalid <= 0 {
		cfg.MaxInvalid = 3
	}
	return &IVREngine{
		menus:    menus,
		prompter: prompter,
		transfer: transfer,
		cfg:      cfg,
		logger:   logger.With("subsystem", "ivr"),
	}
}

// Run drives the dialog for one call: it enters the entry menu, then
// pumps DTMF digits into OnDigit until the endpoint terminates. It is
// the call's single logical worker; run it in its own goroutine.
func (e *IVREngine) Run(ctx context.Context, sess *Session, ep signaling.Endpoint) {
	e.EnterMenu(ctx, sess, ep, e.cfg.EntryMenu)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ep.Done():
			return
		case digit, ok := <-ep.Digits():
			if !ok {
				return
			}
			e.OnDigit(ctx, sess, ep, digit)
		}
	}
}

// EnterMenu renders a menu's prompt and makes it current. A missing
// menu is an error state, never a crash: strict mode tells the caller
// and hangs up, lax mode logs and leaves the dialog state unchanged.
func (e *IVREngine) EnterMenu(ctx context.Context, sess *Session, ep signaling.Endpoint, menuID string) {
	menu, err := e.menus.GetMenu(ctx, menuID)
	if err != nil {
		e.logger.Error("menu lookup failed",
			"call_id", sess.CallID,
			"menu", menuID,
			"error", err,
		)
		return
	}
	if menu == nil {
		e.logger.Warn("menu not found",
			"call_id", sess.CallID,
			"menu", menuID,
		)
		if e.cfg.StrictMenus {
			e.prompter.Speak(ctx, ep, "We are unable to process your call. Goodbye.")
			ep.Destroy()
		}
		return
	}

	sess.enterMenu(menuID)

	if menu.GreetingFile != "" {
		e.prompter.PlayFile(ctx, ep, menu.GreetingFile)
		return
	}
	e.prompter.Speak(ctx, ep, menu.WelcomeMessage)
}

// OnDigit resolves one DTMF digit against the current menu. An unmapped
// digit re-renders the menu without changing the dialog state, bounded
// by the invalid-entry cap. A menu action transitions menus; a transfer
// action announces the destination and invokes the transfer hook.
func (e *IVREngine) OnDigit(ctx context.Context, sess *Session, ep signaling.Endpoint, digit string) {
	menuID := sess.menuID()
	opt, err := e.menus.GetOption(ctx, menuID, digit)
	if err != nil {
		e.logger.Error("option lookup failed",
			"call_id", sess.CallID,
			"menu", menuID,
			"digit", digit,
			"error", err,
		)
		return
	}

	if opt == nil {
		e.invalidDigit(ctx, sess, ep, digit)
		return
	}

	sess.markValid()
	e.logger.Info("menu option selected",
		"call_id", sess.CallID,
		"menu", menuID,
		"digit", digit,
		"action", opt.ActionType,
		"value", opt.ActionValue,
	)

	switch opt.ActionType {
	case models.ActionMenu:
		e.EnterMenu(ctx, sess, ep, opt.ActionValue)
	case models.ActionTransfer:
		e.doTransfer(ctx, sess, ep, opt.ActionValue)
	default:
		e.logger.Warn("unknown menu action",
			"call_id", sess.CallID,
			"action", opt.ActionType,
		)
	}
}

// invalidDigit re-prompts after an unmapped digit, hanging up once the
// caller exhausts the retry cap.
func (e *IVREngine) invalidDigit(ctx context.Context, sess *Session, ep signaling.Endpoint, digit string) {
	attempt := sess.markInvalid()
	e.logger.Info("invalid menu selection",
		"call_id", sess.CallID,
		"menu", sess.menuID(),
		"digit", digit,
		"attempt", attempt,
	)

	if attempt >= e.cfg.MaxInvalid {
		e.prompter.Speak(ctx, ep, "Too many invalid selections. Goodbye.")
		ep.Destroy()
		return
	}

	e.prompter.Speak(ctx, ep, "Invalid selection. Please try again.")
	e.renderMenu(ctx, sess, ep)
}

// renderMenu re-renders the current menu's prompt without resetting the
// dialog state.
func (e *IVREngine) renderMenu(ctx context.Context, sess *Session, ep signaling.Endpoint) {
	menu, err := e.menus.GetMenu(ctx, sess.menuID())
	if err != nil || menu == nil {
		return
	}
	if menu.GreetingFile != "" {
		e.prompter.PlayFile(ctx, ep, menu.GreetingFile)
		return
	}
	e.prompter.Speak(ctx, ep, menu.WelcomeMessage)
}

// doTransfer announces the destination and hands off via the transfer
// hook when one is wired.
func (e *IVREngine) doTransfer(ctx context.Context, sess *Session, ep signaling.Endpoint, dest string) {
	e.prompter.Speak(ctx, ep, fmt.Sprintf("Transferring you to extension %s.", dest))

	if e.transfer == nil {
		e.logger.Info("transfer announced, no transfer hook wired",
			"call_id", sess.CallID,
			"dest", dest,
		)
		return
	}

	if err := e.transfer(ctx, sess, ep, dest); err != nil {
		e.logger.Error("transfer failed",
			"call_id", sess.CallID,
			"dest", dest,
			"error", err,
		)
		e.prompter.Speak(ctx, ep, "That extension is not available. Please try again later.")
		e.renderMenu(ctx, sess, ep)
	}
}

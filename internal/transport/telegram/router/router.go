// Package router drives the operator-facing command surface: /post, /pending,
// /cancel, and the schedule conversation. Conversation state is an explicit
// typed stage value per chat, owned by the router — no ambient flags.
package router

import (
	"context"
	"runtime/debug"
	"strings"
	"sync"

	"github.com/redteam-region722/TG-bot/internal/services/schedule"
	"github.com/redteam-region722/TG-bot/internal/storage"
	kit "github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

// Kicker requests an immediate dispatch tick (used for "now" posts).
type Kicker interface {
	Kick()
}

// DestStore is the destination slice of the persistence API the router needs.
type DestStore interface {
	Destination(ctx context.Context, id string) (storage.Destination, error)
	Destinations(ctx context.Context) ([]storage.Destination, error)
}

type Config struct {
	OperatorUserIDs []int64
}

type Router struct {
	cfg      Config
	adapter  kit.Adapter
	schedule *schedule.Service
	store    DestStore
	kicker   Kicker
	log      logx.Logger

	mu       sync.Mutex
	sessions map[int64]*session
}

func New(cfg Config, adapter kit.Adapter, sched *schedule.Service, store DestStore, kicker Kicker, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{
		cfg:      cfg,
		adapter:  adapter,
		schedule: sched,
		store:    store,
		kicker:   kicker,
		log:      log,
		sessions: map[int64]*session{},
	}
}

// Run consumes updates until ctx is cancelled. It never lets a handler panic
// take down the loop.
func (r *Router) Run(ctx context.Context, updates <-chan kit.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-updates:
			r.dispatch(ctx, up)
		}
	}
}

func (r *Router) dispatch(ctx context.Context, up kit.Update) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in update handler",
				logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message == nil || !r.isOperator(up.Message.FromID) {
			return
		}
		r.handleMessage(ctx, up.Message)
	case kit.UpdateCallback:
		if up.Callback == nil {
			return
		}
		if !r.isOperator(up.Callback.FromID) {
			_ = r.adapter.AnswerCallback(ctx, up.Callback.ID, "Not authorized")
			return
		}
		r.handleCallback(ctx, up.Callback)
	}
}

func (r *Router) isOperator(userID int64) bool {
	for _, id := range r.cfg.OperatorUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Router) handleMessage(ctx context.Context, m *kit.Message) {
	text := strings.TrimSpace(m.Text)

	if strings.HasPrefix(text, "/") {
		cmd, args, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
		// strip @botname suffixes
		cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")
		r.handleCommand(ctx, m, cmd, strings.TrimSpace(args))
		return
	}

	// Not a command: feed the schedule conversation, if one is active.
	r.continueFlow(ctx, m)
}

func (r *Router) handleCommand(ctx context.Context, m *kit.Message, cmd, args string) {
	to := kit.ChatTarget{ChatID: m.ChatID}
	switch cmd {
	case "start", "help":
		r.reply(ctx, to, helpText)
	case "post":
		r.startFlow(ctx, m)
	case "pending":
		r.showPending(ctx, to)
	case "cancel":
		r.cancelByID(ctx, m, args)
	case "cancelall":
		r.confirmCancelAll(ctx, to)
	case "abort":
		r.endSession(m.ChatID)
		r.reply(ctx, to, "Okay, nothing scheduled.")
	default:
		r.reply(ctx, to, "Unknown command. Try /help.")
	}
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat", to.ChatID), logx.Err(err))
	}
}

package router

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/redteam-region722/TG-bot/internal/services/schedule"
	"github.com/redteam-region722/TG-bot/internal/storage"
	kit "github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

const helpText = `<b>Post scheduler</b>

/post — schedule a post (pick destination, time, content)
/pending — list queued posts
/cancel &lt;id&gt; — withdraw a queued post
/cancelall — withdraw every queued post
/abort — drop the current /post conversation

Times are read in the configured display timezone:
<code>now</code> · <code>18:30</code> · <code>25/12 18:30</code> · <code>25/12/2026 18:30</code>`

const timePromptText = `Destination: <b>%s</b>

When should it go out? Send one of:
<code>now</code> — post immediately
<code>18:30</code> — today (or tomorrow if already past)
<code>25/12 18:30</code> — this year
<code>25/12/2026 18:30</code> — explicit year`

const badTimeText = `I couldn't read that time. Use one of:
<code>now</code> · <code>18:30</code> · <code>25/12 18:30</code> · <code>25/12/2026 18:30</code>`

// showPending lists queued posts across all destinations, each with a
// one-tap withdraw button.
func (r *Router) showPending(ctx context.Context, to kit.ChatTarget) {
	dests, err := r.store.Destinations(ctx)
	if err != nil {
		r.log.Error("list destinations", logx.Err(err))
		r.reply(ctx, to, "Something went wrong, try again later.")
		return
	}

	var b strings.Builder
	markup := &tele.ReplyMarkup{}
	var rows []tele.Row
	total := 0
	for _, d := range dests {
		posts, err := r.schedule.Pending(ctx, d.ID)
		if err != nil {
			r.log.Error("list pending", logx.String("dest", d.ID), logx.Err(err))
			continue
		}
		if len(posts) == 0 {
			continue
		}
		fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(d.Name))
		for _, p := range posts {
			total++
			fmt.Fprintf(&b, "• <b>%s</b> — %s <code>%s</code>\n",
				html.EscapeString(r.schedule.Resolver().FormatAt(p.ScheduledAt)),
				html.EscapeString(preview(p.Body, 40)),
				p.ID)
			rows = append(rows, markup.Row(markup.Data("✖ "+shortID(p.ID), "drop", p.ID)))
		}
		b.WriteString("\n")
	}

	if total == 0 {
		r.reply(ctx, to, "Nothing queued.")
		return
	}
	markup.Inline(rows...)
	if _, err := r.adapter.SendText(ctx, to, strings.TrimSpace(b.String()), &kit.SendOptions{
		ParseMode:          "HTML",
		DisablePreview:     true,
		ReplyMarkupAdapter: markup,
	}); err != nil {
		r.log.Warn("send pending list", logx.Err(err))
	}
}

// cancelByID handles "/cancel <id>".
func (r *Router) cancelByID(ctx context.Context, m *kit.Message, args string) {
	to := kit.ChatTarget{ChatID: m.ChatID}
	id := strings.TrimSpace(args)
	if id == "" {
		r.reply(ctx, to, "Usage: <code>/cancel &lt;post id&gt;</code> — ids are shown by /pending.")
		return
	}
	r.withdraw(ctx, to, id, m.FromID)
}

func (r *Router) cancelFromButton(ctx context.Context, cb *kit.Callback, id string) {
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	r.withdraw(ctx, kit.ChatTarget{ChatID: cb.ChatID}, id, cb.FromID)
}

// withdraw cancels a queued post. Every allowlisted operator is privileged,
// so the author restriction never blocks here; it guards future non-operator
// surfaces.
func (r *Router) withdraw(ctx context.Context, to kit.ChatTarget, id string, requester int64) {
	err := r.schedule.Withdraw(ctx, id, requester, true)
	switch {
	case err == nil:
		r.reply(ctx, to, fmt.Sprintf("🗑 Post <code>%s</code> cancelled.", html.EscapeString(id)))
	case errors.Is(err, storage.ErrNotFound):
		r.reply(ctx, to, "No queued post with that id.")
	case errors.Is(err, storage.ErrNotPending):
		r.reply(ctx, to, "Too late — that post is already being sent or is finished.")
	case errors.Is(err, schedule.ErrNotAuthor):
		r.reply(ctx, to, "Only the author can cancel that post.")
	default:
		r.log.Error("withdraw", logx.String("post", id), logx.Err(err))
		r.reply(ctx, to, "Something went wrong, try again later.")
	}
}

// confirmCancelAll asks before wiping the whole queue.
func (r *Router) confirmCancelAll(ctx context.Context, to kit.ChatTarget) {
	markup := &tele.ReplyMarkup{}
	markup.Inline(
		markup.Row(markup.Data("Yes, cancel everything", "wipe", "yes")),
		markup.Row(markup.Data("Keep them", "wipe", "no")),
	)
	if _, err := r.adapter.SendText(ctx, to, "Cancel <b>all</b> queued posts?", &kit.SendOptions{
		ParseMode:          "HTML",
		ReplyMarkupAdapter: markup,
	}); err != nil {
		r.log.Warn("send cancelall confirmation", logx.Err(err))
	}
}

func (r *Router) cancelAll(ctx context.Context, cb *kit.Callback, payload string) {
	to := kit.ChatTarget{ChatID: cb.ChatID}
	if payload != "yes" {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
		r.reply(ctx, to, "Okay, everything stays queued.")
		return
	}
	_ = r.adapter.AnswerCallback(ctx, cb.ID, "Cancelling…")

	dests, err := r.store.Destinations(ctx)
	if err != nil {
		r.log.Error("list destinations", logx.Err(err))
		r.reply(ctx, to, "Something went wrong, try again later.")
		return
	}
	cancelled := 0
	for _, d := range dests {
		posts, err := r.schedule.Pending(ctx, d.ID)
		if err != nil {
			r.log.Error("list pending", logx.String("dest", d.ID), logx.Err(err))
			continue
		}
		for _, p := range posts {
			err := r.schedule.Withdraw(ctx, p.ID, cb.FromID, true)
			switch {
			case err == nil:
				cancelled++
			case errors.Is(err, storage.ErrNotPending):
				// claimed or finished while we were iterating
			default:
				r.log.Error("cancel all: withdraw", logx.String("post", p.ID), logx.Err(err))
			}
		}
	}
	if cancelled == 0 {
		r.reply(ctx, to, "Nothing was queued.")
		return
	}
	r.reply(ctx, to, fmt.Sprintf("🗑 Cancelled <b>%d</b> queued post(s).", cancelled))
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "(photo)"
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "…"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

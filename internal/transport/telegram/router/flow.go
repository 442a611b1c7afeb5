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

// stage is the conversation position for one operator chat.
type stage int

const (
	stageIdle stage = iota
	stageChooseDest
	stageAwaitTime
	stageAwaitContent
)

type session struct {
	stage  stage
	destID string
	when   schedule.Resolution
}

func (r *Router) getSession(chatID int64) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok {
		s = &session{}
		r.sessions[chatID] = s
	}
	return s
}

func (r *Router) endSession(chatID int64) {
	r.mu.Lock()
	delete(r.sessions, chatID)
	r.mu.Unlock()
}

// startFlow begins the /post conversation: pick a destination first.
func (r *Router) startFlow(ctx context.Context, m *kit.Message) {
	to := kit.ChatTarget{ChatID: m.ChatID}
	dests, err := r.store.Destinations(ctx)
	if err != nil {
		r.log.Error("list destinations", logx.Err(err))
		r.reply(ctx, to, "Something went wrong, try again later.")
		return
	}
	if len(dests) == 0 {
		r.reply(ctx, to, "No destinations are configured.")
		return
	}

	s := r.getSession(m.ChatID)
	s.stage = stageChooseDest
	s.destID = ""
	s.when = schedule.Resolution{}

	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(dests))
	for _, d := range dests {
		label := d.Name
		if !d.PostingEnabled {
			label += " (off)"
		}
		rows = append(rows, markup.Row(markup.Data(label, "dest", d.ID)))
	}
	markup.Inline(rows...)

	if _, err := r.adapter.SendText(ctx, to, "Where should this post go?", &kit.SendOptions{
		ParseMode:          "HTML",
		ReplyMarkupAdapter: markup,
	}); err != nil {
		r.log.Warn("send destination keyboard", logx.Err(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	unique, payload := splitCallback(cb.Data)
	switch unique {
	case "dest":
		r.chooseDestination(ctx, cb, payload)
	case "drop":
		r.cancelFromButton(ctx, cb, payload)
	case "wipe":
		r.cancelAll(ctx, cb, payload)
	default:
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

// splitCallback undoes telebot's "\f<unique>|<data>" callback encoding.
func splitCallback(data string) (unique, payload string) {
	data = strings.TrimPrefix(data, "\f")
	unique, payload, _ = strings.Cut(data, "|")
	return unique, payload
}

func (r *Router) chooseDestination(ctx context.Context, cb *kit.Callback, destID string) {
	to := kit.ChatTarget{ChatID: cb.ChatID}
	dest, err := r.store.Destination(ctx, destID)
	if err != nil {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Unknown destination")
		return
	}
	if !dest.PostingEnabled {
		_ = r.adapter.AnswerCallback(ctx, cb.ID, "Posting is disabled there")
		r.reply(ctx, to, fmt.Sprintf("Posting to <b>%s</b> is currently disabled.", html.EscapeString(dest.Name)))
		return
	}

	s := r.getSession(cb.ChatID)
	s.stage = stageAwaitTime
	s.destID = dest.ID

	_ = r.adapter.AnswerCallback(ctx, cb.ID, "")
	r.reply(ctx, to, fmt.Sprintf(timePromptText, html.EscapeString(dest.Name)))
}

// continueFlow feeds a non-command message into the active conversation.
func (r *Router) continueFlow(ctx context.Context, m *kit.Message) {
	s := r.getSession(m.ChatID)
	switch s.stage {
	case stageAwaitTime:
		r.flowTime(ctx, m, s)
	case stageAwaitContent:
		r.flowContent(ctx, m, s)
	default:
		// no active conversation; ignore chatter
	}
}

func (r *Router) flowTime(ctx context.Context, m *kit.Message, s *session) {
	to := kit.ChatTarget{ChatID: m.ChatID}
	res, err := r.schedule.ResolveTime(strings.TrimSpace(m.Text))
	if err != nil {
		switch {
		case errors.Is(err, schedule.ErrBadFormat):
			r.reply(ctx, to, badTimeText)
		case errors.Is(err, schedule.ErrPastTime):
			r.reply(ctx, to, "That time is already in the past. Pick a future time or send <code>now</code>.")
		default:
			r.log.Error("resolve time", logx.Err(err))
			r.reply(ctx, to, "Something went wrong, try again later.")
		}
		return
	}

	// Early feedback only; Schedule re-validates before inserting.
	if err := r.schedule.CheckProposed(ctx, s.destID, res); err != nil {
		r.replyScheduleError(ctx, to, err)
		return
	}

	s.when = res
	s.stage = stageAwaitContent
	r.reply(ctx, to, fmt.Sprintf("Posting at <b>%s</b>. Now send the post content (text or a photo).", html.EscapeString(res.Display)))
}

func (r *Router) flowContent(ctx context.Context, m *kit.Message, s *session) {
	to := kit.ChatTarget{ChatID: m.ChatID}

	body := strings.TrimSpace(m.Text)
	photoID := m.PhotoID
	if photoID != "" {
		body = strings.TrimSpace(m.Caption)
	}
	if body == "" && photoID == "" {
		r.reply(ctx, to, "Send text or a photo for the post.")
		return
	}

	req := schedule.Request{
		DestinationID: s.destID,
		AuthorID:      m.FromID,
		Body:          body,
		PhotoID:       photoID,
		When:          s.when,
	}
	p, err := r.schedule.Schedule(ctx, req)
	if err != nil {
		r.replyScheduleError(ctx, to, err)
		// keep the session at the content stage only for transient trouble;
		// conflicts mean the slot was taken while the operator was typing
		if isConflict(err) {
			s.stage = stageAwaitTime
			r.reply(ctx, to, "Send a new time for the post.")
		}
		return
	}
	r.endSession(m.ChatID)

	if s.when.Immediate {
		r.kicker.Kick()
		r.reply(ctx, to, fmt.Sprintf("✅ Post <code>%s</code> queued, going out now.", p.ID))
		return
	}
	r.reply(ctx, to, fmt.Sprintf("✅ Post <code>%s</code> scheduled for <b>%s</b>.",
		p.ID, html.EscapeString(s.when.Display)))
}

func isConflict(err error) bool {
	var ce *schedule.ConflictError
	return errors.As(err, &ce)
}

func (r *Router) replyScheduleError(ctx context.Context, to kit.ChatTarget, err error) {
	var ce *schedule.ConflictError
	switch {
	case errors.As(err, &ce):
		r.reply(ctx, to, fmt.Sprintf("⛔ Too close to another post (minimum gap %s).\nNext free slot: <b>%s</b>.",
			ce.Gap, html.EscapeString(r.schedule.Resolver().FormatAt(ce.Suggested))))
	case errors.Is(err, schedule.ErrDestinationDisabled):
		r.reply(ctx, to, "Posting to that destination is currently disabled.")
	case errors.Is(err, storage.ErrNotFound):
		r.reply(ctx, to, "That destination no longer exists.")
	default:
		r.log.Error("schedule request", logx.Err(err))
		r.reply(ctx, to, "Something went wrong, try again later.")
	}
}

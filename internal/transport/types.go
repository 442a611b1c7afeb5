package transport

import "context"

type UpdateKind string

const (
	UpdateMessage  UpdateKind = "message"
	UpdateCallback UpdateKind = "callback"
)

type Update struct {
	Kind     UpdateKind
	Message  *Message
	Callback *Callback
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string

	// PhotoID is the platform file reference when the message carries a photo.
	// Caption holds its caption text.
	PhotoID string
	Caption string
}

type Callback struct {
	ID        string
	FromID    int64
	ChatID    int64
	MessageID int
	Data      string
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Button is one link button on a delivered post.
type Button struct {
	Label string
	URL   string
}

// Markup is the platform-neutral presentation attached to a delivered post.
// Each button renders on its own row.
type Markup struct {
	Buttons []Button
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool

	// ReplyMarkupAdapter is adapter-specific markup for interactive UI
	// (Telegram: *telebot.ReplyMarkup). Channel deliveries use Markup via
	// Deliverer instead.
	ReplyMarkupAdapter any
}

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, photoID, caption string, opt *SendOptions) (MessageRef, error)
	AnswerCallback(ctx context.Context, callbackID string, text string) error
}

// Deliverer is the channel-delivery collaborator used by the dispatcher.
// Errors returned from Deliver are always *DeliveryError.
type Deliverer interface {
	Deliver(ctx context.Context, to ChatTarget, content, photoID string, markup *Markup) (MessageRef, error)
}

package dispatch

import (
	"strings"

	"github.com/redteam-region722/TG-bot/internal/storage"
	"github.com/redteam-region722/TG-bot/internal/transport"
)

// RenderContent joins the post body and the destination footer. The footer
// goes after a blank line; with no body the footer alone is the content.
func RenderContent(body, footer string) string {
	if footer == "" {
		return body
	}
	if body == "" {
		return footer
	}
	return body + "\n\n" + footer
}

// BuildMarkup assembles the button set from the destination's two slots.
// A slot contributes a button only when both its label and URL are non-empty
// after trimming; URLs are not validated here — the delivery target decides.
func BuildMarkup(dest storage.Destination) *transport.Markup {
	var buttons []transport.Button
	if l, u := strings.TrimSpace(dest.Button1Label), strings.TrimSpace(dest.Button1URL); l != "" && u != "" {
		buttons = append(buttons, transport.Button{Label: l, URL: u})
	}
	if l, u := strings.TrimSpace(dest.Button2Label), strings.TrimSpace(dest.Button2URL); l != "" && u != "" {
		buttons = append(buttons, transport.Button{Label: l, URL: u})
	}
	if len(buttons) == 0 {
		return nil
	}
	return &transport.Markup{Buttons: buttons}
}

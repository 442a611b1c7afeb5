package dispatch

import (
	"context"

	"github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

// ladderState is the explicit retry state machine for one delivery:
//
//	fullMarkup -> sameMarkupRetry -> noMarkup -> failed
//
// Only invalid-markup and transient failures enter the ladder; not-found and
// other failures abort immediately (the post stays pending for the next
// tick). The same-markup retry is deliberate: the target may accept the
// markup on a second attempt and render a non-functional button, which is
// preferred over silently stripping it on the first error.
type ladderState int

const (
	stateFullMarkup ladderState = iota
	stateSameMarkupRetry
	stateNoMarkup
)

func (s *Service) deliverLadder(ctx context.Context, to transport.ChatTarget, content, photoID string, markup *transport.Markup) (transport.MessageRef, error) {
	state := stateFullMarkup
	for {
		m := markup
		if state == stateNoMarkup {
			m = nil
		}
		ref, err := s.deliverer.Deliver(ctx, to, content, photoID, m)
		if err == nil {
			return ref, nil
		}
		kind := transport.DeliveryKindOf(err)

		switch state {
		case stateFullMarkup:
			if kind == transport.DeliveryInvalidMarkup || kind == transport.DeliveryTransient {
				s.log.Warn("delivery failed; retrying with same markup",
					logx.String("kind", string(kind)), logx.Err(err))
				state = stateSameMarkupRetry
				continue
			}
			return transport.MessageRef{}, err
		case stateSameMarkupRetry:
			if markup == nil {
				// Nothing left to degrade.
				return transport.MessageRef{}, err
			}
			s.log.Warn("delivery failed again; retrying without markup", logx.Err(err))
			state = stateNoMarkup
			continue
		default: // stateNoMarkup
			return transport.MessageRef{}, err
		}
	}
}

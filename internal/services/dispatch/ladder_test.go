package dispatch

import (
	"context"
	"errors"
	"testing"

	"github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

// scriptedDeliverer returns one scripted outcome per Deliver call and records
// the markup each attempt carried.
type scriptedDeliverer struct {
	script  []error
	calls   int
	markups []*transport.Markup
}

func (d *scriptedDeliverer) Deliver(_ context.Context, _ transport.ChatTarget, _, _ string, markup *transport.Markup) (transport.MessageRef, error) {
	d.markups = append(d.markups, markup)
	var err error
	if d.calls < len(d.script) {
		err = d.script[d.calls]
	}
	d.calls++
	if err != nil {
		return transport.MessageRef{}, err
	}
	return transport.MessageRef{ChatID: -100, MessageID: 42}, nil
}

func deliveryErr(kind transport.DeliveryKind) error {
	return &transport.DeliveryError{Kind: kind, Err: errors.New("boom")}
}

func testMarkup() *transport.Markup {
	return &transport.Markup{Buttons: []transport.Button{{Label: "Join", URL: "https://t.me/chan"}}}
}

func newLadderService(d transport.Deliverer) *Service {
	return New(Config{}, nil, d, nil, logx.Nop())
}

func TestLadderFirstAttemptSucceeds(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{}
	s := newLadderService(d)

	ref, err := s.deliverLadder(context.Background(), transport.ChatTarget{ChatID: -100}, "hi", "", testMarkup())
	if err != nil {
		t.Fatalf("deliverLadder error: %v", err)
	}
	if ref.MessageID != 42 {
		t.Fatalf("MessageID = %d", ref.MessageID)
	}
	if d.calls != 1 {
		t.Fatalf("calls = %d, want 1", d.calls)
	}
	if d.markups[0] == nil {
		t.Fatal("first attempt lost the markup")
	}
}

func TestLadderDegradesToNoMarkup(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{script: []error{
		deliveryErr(transport.DeliveryInvalidMarkup),
		deliveryErr(transport.DeliveryInvalidMarkup),
		nil,
	}}
	s := newLadderService(d)

	_, err := s.deliverLadder(context.Background(), transport.ChatTarget{}, "hi", "", testMarkup())
	if err != nil {
		t.Fatalf("deliverLadder error: %v", err)
	}
	if d.calls != 3 {
		t.Fatalf("calls = %d, want 3", d.calls)
	}
	// full markup, same markup retry, then stripped
	if d.markups[0] == nil || d.markups[1] == nil || d.markups[2] != nil {
		t.Fatalf("markup sequence = %v %v %v", d.markups[0], d.markups[1], d.markups[2])
	}
}

func TestLadderSameMarkupRetryCanSucceed(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{script: []error{
		deliveryErr(transport.DeliveryTransient),
		nil,
	}}
	s := newLadderService(d)

	_, err := s.deliverLadder(context.Background(), transport.ChatTarget{}, "hi", "", testMarkup())
	if err != nil {
		t.Fatalf("deliverLadder error: %v", err)
	}
	if d.calls != 2 {
		t.Fatalf("calls = %d, want 2", d.calls)
	}
	if d.markups[1] == nil {
		t.Fatal("second attempt should keep the markup")
	}
}

func TestLadderAbortsOnNotFound(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{script: []error{deliveryErr(transport.DeliveryNotFound)}}
	s := newLadderService(d)

	_, err := s.deliverLadder(context.Background(), transport.ChatTarget{}, "hi", "", testMarkup())
	if transport.DeliveryKindOf(err) != transport.DeliveryNotFound {
		t.Fatalf("err = %v, want not_found", err)
	}
	if d.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retries for not_found)", d.calls)
	}
}

func TestLadderExhaustsAndFails(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{script: []error{
		deliveryErr(transport.DeliveryInvalidMarkup),
		deliveryErr(transport.DeliveryInvalidMarkup),
		deliveryErr(transport.DeliveryOther),
	}}
	s := newLadderService(d)

	_, err := s.deliverLadder(context.Background(), transport.ChatTarget{}, "hi", "", testMarkup())
	if transport.DeliveryKindOf(err) != transport.DeliveryOther {
		t.Fatalf("err = %v, want the final attempt's error", err)
	}
	if d.calls != 3 {
		t.Fatalf("calls = %d, want 3", d.calls)
	}
}

func TestLadderNoMarkupToStrip(t *testing.T) {
	t.Parallel()
	d := &scriptedDeliverer{script: []error{
		deliveryErr(transport.DeliveryTransient),
		deliveryErr(transport.DeliveryTransient),
	}}
	s := newLadderService(d)

	// With no markup, the ladder stops after the same-content retry.
	_, err := s.deliverLadder(context.Background(), transport.ChatTarget{}, "hi", "", nil)
	if transport.DeliveryKindOf(err) != transport.DeliveryTransient {
		t.Fatalf("err = %v, want transient", err)
	}
	if d.calls != 2 {
		t.Fatalf("calls = %d, want 2", d.calls)
	}
}

// Package notify is the async author-notification pipeline: a bounded queue
// drained by one worker under a token-bucket rate limit. Notifications are
// fire-and-forget; send errors are logged and discarded, and a full queue
// drops the notification rather than blocking the caller.
package notify

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

type Config struct {
	RatePerSec int
	QueueSize  int
}

type item struct {
	to   transport.ChatTarget
	text string
}

// Sender is the outbound slice of the transport adapter this service needs.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Service struct {
	cfg     Config
	sender  Sender
	log     logx.Logger
	limiter *rate.Limiter

	mu      sync.Mutex
	queue   chan item
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func New(cfg Config, sender Sender, log logx.Logger) *Service {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		sender:  sender,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.queue = make(chan item, s.cfg.QueueSize)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	queue := s.queue

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case it := <-queue:
				if err := s.limiter.Wait(runCtx); err != nil {
					return
				}
				if _, err := s.sender.SendText(runCtx, it.to, it.text, &transport.SendOptions{ParseMode: "HTML"}); err != nil {
					// Best-effort by contract: log and move on.
					s.log.Warn("author notification failed", logx.Int64("chat", it.to.ChatID), logx.Err(err))
				}
			}
		}
	}()
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.running = false
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// Notify enqueues a notification; never blocks. A full queue drops it.
func (s *Service) Notify(recipient int64, text string) {
	s.mu.Lock()
	queue := s.queue
	running := s.running
	s.mu.Unlock()
	if !running || queue == nil {
		return
	}
	select {
	case queue <- item{to: transport.ChatTarget{ChatID: recipient}, text: text}:
	default:
		s.log.Debug("notification queue full; dropping", logx.Int64("chat", recipient))
	}
}

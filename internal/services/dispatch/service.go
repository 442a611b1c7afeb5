package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/redteam-region722/TG-bot/internal/storage"
	"github.com/redteam-region722/TG-bot/internal/transport"
	"github.com/redteam-region722/TG-bot/pkg/logx"
)

// Store is the slice of the persistence API the delivery loop needs.
type Store interface {
	Ready(ctx context.Context, now time.Time) ([]storage.ScheduledPost, error)
	Destination(ctx context.Context, id string) (storage.Destination, error)
	Claim(ctx context.Context, id string) error
	Release(ctx context.Context, id string) error
	ReleaseAllClaims(ctx context.Context) (int64, error)
	CommitDelivery(ctx context.Context, id string, rec storage.PostRecord) error
}

// Notifier delivers best-effort author notifications; implementations must
// never block.
type Notifier interface {
	Notify(recipient int64, text string)
}

type Config struct {
	// Interval between ticks; defaults to one minute.
	Interval time.Duration
	// DisplayTZ is used for times in author notifications.
	DisplayTZ *time.Location
}

type Service struct {
	cfg       Config
	store     Store
	deliverer transport.Deliverer
	notifier  Notifier
	log       logx.Logger

	now func() time.Time

	runMu   sync.Mutex
	cron    *cron.Cron
	entry   cron.EntryID
	kick    chan struct{}
	runCtx  context.Context
	cancel  context.CancelFunc
	kickWG  sync.WaitGroup
	running bool
}

func New(cfg Config, store Store, deliverer transport.Deliverer, notifier Notifier, log logx.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.DisplayTZ == nil {
		cfg.DisplayTZ = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		deliverer: deliverer,
		notifier:  notifier,
		log:       log,
		now:       time.Now,
		kick:      make(chan struct{}, 1),
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return nil
	}

	// Sweep claims orphaned by a previous crash back to pending.
	if n, err := s.store.ReleaseAllClaims(ctx); err != nil {
		return fmt.Errorf("releasing orphaned claims: %w", err)
	} else if n > 0 {
		s.log.Warn("released orphaned dispatch claims", logx.Int64("count", n))
	}

	s.runCtx, s.cancel = context.WithCancel(ctx)

	// DelayIfStillRunning is the single-flight guard: a tick that outlives
	// the interval defers the next wake instead of overlapping it.
	s.cron = cron.New(cron.WithChain(cron.DelayIfStillRunning(cronLogger{s.log})))
	runCtx := s.runCtx
	entry, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.cfg.Interval), func() {
		s.tick(runCtx)
	})
	if err != nil {
		return fmt.Errorf("registering dispatch tick: %w", err)
	}
	s.entry = entry
	s.cron.Start()

	// Kick channel lets "now" posts be picked up without waiting a full
	// interval. The wrapped job keeps the single-flight guarantee. The cron
	// instance is captured locally: Stop clears s.cron under runMu, and a
	// kick racing shutdown must not observe that nil.
	c := s.cron
	s.kickWG.Add(1)
	go func() {
		defer s.kickWG.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-s.kick:
				c.Entry(entry).WrappedJob.Run()
			}
		}
	}()

	s.running = true
	s.log.Info("dispatcher started", logx.Duration("interval", s.cfg.Interval))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	s.running = false
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	s.runMu.Unlock()

	cancel()
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
		s.log.Warn("dispatcher stop timed out; tick continues in background")
	}
	s.kickWG.Wait()
	s.log.Info("dispatcher stopped")
}

// Kick requests an immediate tick (non-blocking; coalesces).
func (s *Service) Kick() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// tick processes every ready post sequentially in global scheduled-time
// order. It never returns an error: each failure is logged and the loop
// moves on.
func (s *Service) tick(ctx context.Context) {
	now := s.now().UTC()
	ready, err := s.store.Ready(ctx, now)
	if err != nil {
		s.log.Error("listing ready posts failed", logx.Err(err))
		return
	}
	if len(ready) == 0 {
		return
	}
	s.log.Info("processing ready posts", logx.Int("count", len(ready)))

	for _, p := range ready {
		if ctx.Err() != nil {
			return
		}
		s.processOne(ctx, p)
	}
}

func (s *Service) processOne(ctx context.Context, p storage.ScheduledPost) {
	log := s.log.With(logx.String("post", p.ID), logx.String("dest", p.DestinationID))

	dest, err := s.store.Destination(ctx, p.DestinationID)
	if err != nil {
		log.Error("destination lookup failed; leaving post pending", logx.Err(err))
		return
	}
	if !dest.PostingEnabled {
		log.Warn("posting disabled for destination; leaving post pending")
		return
	}

	// Claim before any delivery: once claimed, a late withdrawal cannot
	// cancel the post; once withdrawn, we never reach delivery.
	if err := s.store.Claim(ctx, p.ID); err != nil {
		if errors.Is(err, storage.ErrNotPending) {
			log.Debug("post no longer pending; skipping", logx.Err(err))
		} else {
			log.Error("claim failed", logx.Err(err))
		}
		return
	}

	content := RenderContent(p.Body, dest.Footer)
	markup := BuildMarkup(dest)

	ref, err := s.deliverLadder(ctx, transport.ChatTarget{ChatID: dest.ChatID}, content, p.PhotoID, markup)
	if err != nil {
		log.Error("delivery failed; post stays pending for next tick",
			logx.String("kind", string(transport.DeliveryKindOf(err))), logx.Err(err))
		if rerr := s.store.Release(ctx, p.ID); rerr != nil {
			log.Error("releasing claim failed", logx.Err(rerr))
		}
		return
	}

	rec := storage.PostRecord{
		DestinationID: dest.ID,
		AuthorID:      p.AuthorID,
		Body:          content,
		PhotoID:       p.PhotoID,
		ChatID:        ref.ChatID,
		MessageID:     ref.MessageID,
		PostedAt:      s.now().UTC(),
	}
	if err := s.store.CommitDelivery(ctx, p.ID, rec); err != nil {
		// The message is out. Do NOT release: that would redeliver. The claim
		// stays until the startup sweep; this is the one path where a restart
		// can duplicate a post, and it is logged accordingly.
		log.Error("delivered but commit failed; claim kept to avoid redelivery", logx.Err(err))
		return
	}

	log.Info("post delivered", logx.Int("message_id", ref.MessageID))

	if s.notifier != nil {
		s.notifier.Notify(p.AuthorID, s.authorSummary(p, dest))
	}
}

func (s *Service) authorSummary(p storage.ScheduledPost, dest storage.Destination) string {
	kind := "post"
	if p.PhotoID != "" {
		kind = "photo post"
	}
	preview := p.Body
	if preview == "" {
		preview = "[photo only]"
	}
	if r := []rune(preview); len(r) > 100 {
		preview = string(r[:100]) + "..."
	}
	return fmt.Sprintf("✅ <b>Scheduled %s sent!</b>\n\nYour %s to <b>%s</b> has been published.\n\n<b>Content:</b>\n%s",
		kind, kind, dest.Name, preview)
}

// cronLogger adapts logx to the cron.Logger interface.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", kv))
}

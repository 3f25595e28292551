// Package bot runs a polling mention responder on the AT side. It
// searches for posts mentioning the configured handle and replies to
// each new one with a short greeting.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/agora-at/agorat/pkg/payload"
	"github.com/agora-at/agorat/pkg/telemetry"
)

// Poster is the slice of the AT adapter the bot needs.
type Poster interface {
	CreatePost(ctx context.Context, text string, facets payload.Value) (payload.Value, error)
	SearchPosts(ctx context.Context, query string, limit int) ([]payload.Value, error)
}

type Config struct {
	Handle      string
	Interval    time.Duration
	MaxMentions int
	Cooldown    time.Duration
}

type Bot struct {
	poster      Poster
	handle      string
	interval    time.Duration
	maxMentions int
	cooldown    time.Duration
	logger      *slog.Logger

	lastCheck time.Time
	replyIdx  int
	now       func() time.Time
}

var replies = []string{
	"Hey there! Thanks for the mention.",
	"Hello! I'm a bridge agent relaying between networks.",
	"Hi! Always happy to hear from the timeline.",
}

func New(poster Poster, cfg Config, logger *slog.Logger) (*Bot, error) {
	if poster == nil {
		return nil, fmt.Errorf("bot: poster is required")
	}
	if cfg.Handle == "" {
		return nil, fmt.Errorf("bot: handle is required")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MaxMentions <= 0 {
		cfg.MaxMentions = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * cfg.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bot{
		poster:      poster,
		handle:      cfg.Handle,
		interval:    cfg.Interval,
		maxMentions: cfg.MaxMentions,
		cooldown:    cfg.Cooldown,
		logger:      logger,
		now:         time.Now,
	}
	b.lastCheck = b.now().Add(-24 * time.Hour)
	return b, nil
}

// Run polls until the context is cancelled. A failed iteration backs
// off for the cooldown instead of the regular interval.
func (b *Bot) Run(ctx context.Context) error {
	logger := telemetry.Component(ctx, "bot")
	logger.Info("bot started",
		slog.String("handle", b.handle),
		slog.Duration("interval", b.interval),
	)

	timer := time.NewTimer(b.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("bot stopped")
			return ctx.Err()
		case <-timer.C:
		}

		wait := b.interval
		if err := b.checkMentions(ctx); err != nil {
			telemetry.Metrics.BotIterations.WithLabelValues("error").Inc()
			logger.Warn("bot iteration failed",
				slog.String("err", err.Error()),
				slog.Duration("cooldown", b.cooldown),
			)
			wait = b.cooldown
		} else {
			telemetry.Metrics.BotIterations.WithLabelValues("ok").Inc()
		}

		timer.Reset(wait)
	}
}

// checkMentions replies to posts mentioning the handle that arrived
// since the previous pass. The watermark only advances on success so a
// failed pass retries the same window.
func (b *Bot) checkMentions(ctx context.Context) error {
	since := b.lastCheck
	checkedAt := b.now()

	posts, err := b.poster.SearchPosts(ctx, "@"+b.handle, 2*b.maxMentions)
	if err != nil {
		return fmt.Errorf("searching mentions: %w", err)
	}

	replied := 0
	for _, post := range posts {
		if replied >= b.maxMentions {
			break
		}
		if !b.isNewMention(post, since) {
			continue
		}

		author := ""
		if a, ok := post.Get("author"); ok {
			author = a.GetString("handle")
		}

		text := fmt.Sprintf("@%s %s", author, b.nextReply())
		if _, err := b.poster.CreatePost(ctx, text, payload.Null()); err != nil {
			return fmt.Errorf("replying to mention %s: %w", post.GetString("uri"), err)
		}

		b.logger.Info("replied to mention",
			slog.String("uri", post.GetString("uri")),
			slog.String("author", author),
		)
		replied++
	}

	b.lastCheck = checkedAt
	return nil
}

// isNewMention keeps posts indexed after the watermark whose author is
// not the bot itself. Posts without a parseable indexedAt are skipped.
func (b *Bot) isNewMention(post payload.Value, since time.Time) bool {
	author, ok := post.Get("author")
	if ok && author.GetString("handle") == b.handle {
		return false
	}

	indexed, err := time.Parse(time.RFC3339, post.GetString("indexedAt"))
	if err != nil {
		return false
	}
	return indexed.After(since)
}

func (b *Bot) nextReply() string {
	r := replies[b.replyIdx%len(replies)]
	b.replyIdx++
	return r
}

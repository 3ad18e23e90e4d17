// Package slog provides logging decorators for the otokit collaborators.
package slog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/otokit"
)

// Ensure LoggingCrawler implements otokit.Crawler.
var _ otokit.Crawler = (*LoggingCrawler)(nil)

// LoggingCrawler wraps a Crawler with logging.
type LoggingCrawler struct {
	next   otokit.Crawler
	logger *slog.Logger
}

// NewLoggingCrawler creates a new LoggingCrawler.
func NewLoggingCrawler(next otokit.Crawler, logger *slog.Logger) *LoggingCrawler {
	return &LoggingCrawler{next: next, logger: logger}
}

// AuthorizationURL delegates to the wrapped crawler and logs the operation.
func (c *LoggingCrawler) AuthorizationURL(ctx context.Context) (u string, err error) {
	defer func(begin time.Time) {
		c.logger.Info("authorization url",
			"ok", u != "",
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.AuthorizationURL(ctx)
}

// FetchAndUpload delegates to the wrapped crawler and logs the operation
// with the number of messages it emitted.
func (c *LoggingCrawler) FetchAndUpload(ctx context.Context, req otokit.UploadRequest, events otokit.Emitter) (err error) {
	counter := &eventCounter{next: events}
	defer func(begin time.Time) {
		messages, finished := counter.counts()
		c.logger.Info("fetch and upload",
			"game", req.Game.String(),
			"difficulties", len(req.Difficulties),
			"messages", messages,
			"finished", finished,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return c.next.FetchAndUpload(ctx, req, counter)
}

// eventCounter forwards events and counts them.
type eventCounter struct {
	next otokit.Emitter

	mu       sync.Mutex
	messages int
	finished bool
}

func (e *eventCounter) Emit(evt otokit.Event) {
	e.mu.Lock()
	switch evt.Kind {
	case otokit.EventMessage:
		e.messages++
	case otokit.EventFinished:
		e.finished = true
	}
	e.mu.Unlock()
	e.next.Emit(evt)
}

func (e *eventCounter) counts() (messages int, finished bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.messages, e.finished
}

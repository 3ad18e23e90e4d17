package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/otokit"
)

// Ensure LoggingUploader implements otokit.Uploader.
var _ otokit.Uploader = (*LoggingUploader)(nil)

// LoggingUploader wraps an Uploader with logging.
type LoggingUploader struct {
	next   otokit.Uploader
	logger *slog.Logger
}

// NewLoggingUploader creates a new LoggingUploader.
func NewLoggingUploader(next otokit.Uploader, logger *slog.Logger) *LoggingUploader {
	return &LoggingUploader{next: next, logger: logger}
}

// Name delegates to the wrapped uploader.
func (u *LoggingUploader) Name() string {
	return u.next.Name()
}

// Upload delegates to the wrapped uploader and logs the operation. The
// token is never logged.
func (u *LoggingUploader) Upload(ctx context.Context, page otokit.UploadPage) (err error) {
	defer func(begin time.Time) {
		u.logger.Info("upload",
			"target", u.next.Name(),
			"difficulty", page.Difficulty.String(),
			"bytes", len(page.HTML),
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return u.next.Upload(ctx, page)
}

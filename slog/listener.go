package slog

import (
	"log/slog"

	"github.com/fwojciec/otokit"
)

// Ensure LoggingListener implements otokit.Listener.
var _ otokit.Listener = (*LoggingListener)(nil)

// LoggingListener wraps a Listener and logs every delivered callback.
type LoggingListener struct {
	next   otokit.Listener
	logger *slog.Logger
}

// NewLoggingListener creates a new LoggingListener.
func NewLoggingListener(next otokit.Listener, logger *slog.Logger) *LoggingListener {
	return &LoggingListener{next: next, logger: logger}
}

func (l *LoggingListener) OnMessage(text string) {
	l.logger.Debug("listener message", "text", text)
	l.next.OnMessage(text)
}

func (l *LoggingListener) OnAuthStarted() {
	l.logger.Debug("listener auth started")
	l.next.OnAuthStarted()
}

func (l *LoggingListener) OnFinished() {
	l.logger.Info("listener finished")
	l.next.OnFinished()
}

func (l *LoggingListener) OnError(err error) {
	l.logger.Warn("listener error",
		"code", otokit.ErrorCode(err),
		"err", err,
	)
	l.next.OnError(err)
}

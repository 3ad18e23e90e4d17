package slog_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/fwojciec/otokit"
	"github.com/fwojciec/otokit/mock"
	otoslog "github.com/fwojciec/otokit/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingCrawler_AuthorizationURL(t *testing.T) {
	t.Parallel()

	t.Run("logs success with duration", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Crawler{
			AuthorizationURLFn: func(context.Context) (string, error) {
				return "https://auth.example/start?redirect_uri=http", nil
			},
		}

		crawler := otoslog.NewLoggingCrawler(inner, logger)
		u, err := crawler.AuthorizationURL(context.Background())

		require.NoError(t, err)
		assert.Equal(t, "https://auth.example/start?redirect_uri=http", u)
		output := buf.String()
		assert.Contains(t, output, "authorization url")
		assert.Contains(t, output, "ok=true")
		assert.Contains(t, output, "duration=")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Crawler{
			AuthorizationURLFn: func(context.Context) (string, error) {
				return "", errors.New("network error")
			},
		}

		crawler := otoslog.NewLoggingCrawler(inner, logger)
		_, err := crawler.AuthorizationURL(context.Background())

		require.Error(t, err)
		output := buf.String()
		assert.Contains(t, output, "ok=false")
		assert.Contains(t, output, "err=\"network error\"")
	})
}

func TestLoggingCrawler_FetchAndUpload(t *testing.T) {
	t.Parallel()

	t.Run("forwards events and logs their count", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Crawler{
			FetchAndUploadFn: func(_ context.Context, _ otokit.UploadRequest, events otokit.Emitter) error {
				events.Emit(otokit.AuthStarted())
				events.Emit(otokit.Message("one"))
				events.Emit(otokit.Message("two"))
				events.Emit(otokit.Finished())
				return nil
			},
		}
		events := &mock.Emitter{}

		crawler := otoslog.NewLoggingCrawler(inner, logger)
		err := crawler.FetchAndUpload(context.Background(), otokit.UploadRequest{
			Game:         otokit.GameChunithm,
			Difficulties: otokit.NewDifficultySet(otokit.Basic, otokit.Master),
		}, events)

		require.NoError(t, err)
		assert.Equal(t, []string{"one", "two"}, events.Messages())
		assert.Len(t, events.Events(), 4)
		output := buf.String()
		assert.Contains(t, output, "fetch and upload")
		assert.Contains(t, output, "game=chunithm")
		assert.Contains(t, output, "difficulties=2")
		assert.Contains(t, output, "messages=2")
		assert.Contains(t, output, "finished=true")
	})

	t.Run("logs error on failure", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		inner := &mock.Crawler{
			FetchAndUploadFn: func(context.Context, otokit.UploadRequest, otokit.Emitter) error {
				return otokit.Errorf(otokit.EIO, "login failed")
			},
		}

		crawler := otoslog.NewLoggingCrawler(inner, logger)
		err := crawler.FetchAndUpload(context.Background(), otokit.UploadRequest{}, &mock.Emitter{})

		require.Error(t, err)
		output := buf.String()
		assert.Contains(t, output, "finished=false")
		assert.Contains(t, output, "login failed")
	})
}

package mock

import (
	"context"

	"github.com/fwojciec/otokit"
)

var _ otokit.Crawler = (*Crawler)(nil)

// Crawler is a mock implementation of otokit.Crawler.
type Crawler struct {
	AuthorizationURLFn func(ctx context.Context) (string, error)
	FetchAndUploadFn   func(ctx context.Context, req otokit.UploadRequest, events otokit.Emitter) error
}

func (c *Crawler) AuthorizationURL(ctx context.Context) (string, error) {
	return c.AuthorizationURLFn(ctx)
}

func (c *Crawler) FetchAndUpload(ctx context.Context, req otokit.UploadRequest, events otokit.Emitter) error {
	return c.FetchAndUploadFn(ctx, req, events)
}

var _ otokit.Uploader = (*Uploader)(nil)

// Uploader is a mock implementation of otokit.Uploader.
type Uploader struct {
	NameFn   func() string
	UploadFn func(ctx context.Context, page otokit.UploadPage) error
}

func (u *Uploader) Name() string {
	return u.NameFn()
}

func (u *Uploader) Upload(ctx context.Context, page otokit.UploadPage) error {
	return u.UploadFn(ctx, page)
}

var _ otokit.FriendCodeExtractor = (*FriendCodeExtractor)(nil)

// FriendCodeExtractor is a mock implementation of otokit.FriendCodeExtractor.
type FriendCodeExtractor struct {
	ExtractFriendCodeFn func(html string) (string, error)
}

func (e *FriendCodeExtractor) ExtractFriendCode(html string) (string, error) {
	return e.ExtractFriendCodeFn(html)
}

package otokit

import "context"

// Crawler performs the authenticated web requests of a run.
type Crawler interface {
	// AuthorizationURL obtains the WeChat authorization URL the user opens
	// to complete login. Returns EIO on network failure.
	AuthorizationURL(ctx context.Context) (string, error)

	// FetchAndUpload logs in through req.AuthURL, fetches the player's
	// records and uploads them. Progress, including the final finished
	// event, is reported through events. Returns EIO on failure.
	FetchAndUpload(ctx context.Context, req UploadRequest, events Emitter) error
}

// UploadRequest carries the inputs of a single fetch-and-upload call.
type UploadRequest struct {
	Username     string
	Password     string
	Game         Game
	Difficulties DifficultySet
	AuthURL      string

	// Stopped reports whether the user asked to stop. The crawler checks
	// it between pages. Nil means never stopped.
	Stopped func() bool
}

// IsStopped reports whether the request has been asked to stop.
func (r UploadRequest) IsStopped() bool {
	return r.Stopped != nil && r.Stopped()
}

// UploadPage is one fetched record page handed to an Uploader.
type UploadPage struct {
	Game       Game
	Difficulty Difficulty
	HTML       string

	// Token is the uploader credential taken from the session.
	Token string

	// FriendCode is the player's friend code, if it was found.
	FriendCode string
}

// Uploader sends record pages to a score tracker.
type Uploader interface {
	// Name returns the tracker's display name.
	Name() string

	// Upload sends a single page.
	Upload(ctx context.Context, page UploadPage) error
}

// FriendCodeExtractor finds the player's friend code in a player data page.
type FriendCodeExtractor interface {
	// ExtractFriendCode returns the friend code, or ENOTFOUND.
	ExtractFriendCode(html string) (string, error)
}

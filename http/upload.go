package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/fwojciec/otokit"
)

// Ensure uploaders implement otokit.Uploader at compile time.
var (
	_ otokit.Uploader = (*DivingFish)(nil)
	_ otokit.Uploader = (*Lxns)(nil)
)

// DivingFish uploads record pages to the diving-fish prober.
type DivingFish struct {
	client  *http.Client
	baseURL string
}

// NewDivingFish creates a DivingFish uploader. An empty baseURL selects
// DefaultDivingFishBaseURL; a nil client selects http.DefaultClient.
func NewDivingFish(client *http.Client, baseURL string) *DivingFish {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultDivingFishBaseURL
	}
	return &DivingFish{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the tracker's display name.
func (u *DivingFish) Name() string { return "水鱼" }

// Upload posts the raw page HTML with the import token.
func (u *DivingFish) Upload(ctx context.Context, page otokit.UploadPage) error {
	if page.Token == "" {
		return otokit.Errorf(otokit.EINVALID, "diving-fish import token required")
	}
	prober := "maimaidxprober"
	if page.Game == otokit.GameChunithm {
		prober = "chunithmprober"
	}
	endpoint := u.baseURL + "/api/" + prober + "/player/update_records_html"
	return post(ctx, u.client, endpoint, page.HTML, map[string]string{
		"Import-Token": page.Token,
	})
}

// Lxns uploads record pages to the lxns score tracker. It needs the
// player's friend code.
type Lxns struct {
	client  *http.Client
	baseURL string
}

// NewLxns creates an Lxns uploader. An empty baseURL selects
// DefaultLxnsBaseURL; a nil client selects http.DefaultClient.
func NewLxns(client *http.Client, baseURL string) *Lxns {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultLxnsBaseURL
	}
	return &Lxns{client: client, baseURL: strings.TrimRight(baseURL, "/")}
}

// Name returns the tracker's display name.
func (u *Lxns) Name() string { return "落雪" }

// Upload posts the raw page HTML to the player's endpoint.
func (u *Lxns) Upload(ctx context.Context, page otokit.UploadPage) error {
	if page.Token == "" {
		return otokit.Errorf(otokit.EINVALID, "lxns token required")
	}
	if page.FriendCode == "" {
		return otokit.Errorf(otokit.ENOTFOUND, "friend code unknown")
	}
	game := "maimai"
	if page.Game == otokit.GameChunithm {
		game = "chunithm"
	}
	token := page.Token
	if !strings.HasPrefix(token, "Bearer ") {
		token = "Bearer " + token
	}
	endpoint := u.baseURL + "/api/v0/" + game + "/player/" + url.PathEscape(page.FriendCode) + "/html"
	return post(ctx, u.client, endpoint, page.HTML, map[string]string{
		"Authorization": token,
	})
}

func post(ctx context.Context, client *http.Client, endpoint, body string, headers map[string]string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	setHeaders(req, headers)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Target binds an uploader to the session field that carries its token.
type Target struct {
	Uploader otokit.Uploader

	// Token selects the uploader credential from the request.
	Token func(req otokit.UploadRequest) string

	// NeedsFriendCode makes the crawler look up the friend code before
	// uploading and skip the target when none is found.
	NeedsFriendCode bool
}

// UsernameToken selects the request username as the token.
func UsernameToken(req otokit.UploadRequest) string { return req.Username }

// PasswordToken selects the request password as the token.
func PasswordToken(req otokit.UploadRequest) string { return req.Password }

// DivingFishTarget returns the diving-fish target, keyed by the username.
func DivingFishTarget(u otokit.Uploader) Target {
	return Target{Uploader: u, Token: UsernameToken}
}

// LxnsTarget returns the lxns target, keyed by the password.
func LxnsTarget(u otokit.Uploader) Target {
	return Target{Uploader: u, Token: PasswordToken, NeedsFriendCode: true}
}

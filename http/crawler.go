package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/otokit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Crawler defaults.
const (
	DefaultPageInterval      = 1200 * time.Millisecond
	DefaultUploadConcurrency = 2
)

// Ensure Crawler implements otokit.Crawler at compile time.
var _ otokit.Crawler = (*Crawler)(nil)

// Crawler logs in through the WeChat callback, fetches the player's record
// pages and hands them to the configured upload targets. Each
// FetchAndUpload call uses its own cookie jar, so concurrent runs do not
// share sessions.
type Crawler struct {
	transport         http.RoundTripper
	timeout           time.Duration
	game              otokit.Game
	authBaseURL       string
	maimaiBaseURL     string
	chunithmBaseURL   string
	pageInterval      time.Duration
	retryDelays       []time.Duration
	uploadConcurrency int
	targets           []Target
	extractor         otokit.FriendCodeExtractor
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithTransport sets the round tripper used for every request.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Crawler) {
		c.transport = rt
	}
}

// WithTimeout sets the per-request timeout.
// Defaults to DefaultTimeout if not specified.
func WithTimeout(d time.Duration) Option {
	return func(c *Crawler) {
		c.timeout = d
	}
}

// WithGame selects the game whose authorization URL is requested.
func WithGame(g otokit.Game) Option {
	return func(c *Crawler) {
		c.game = g
	}
}

// WithBaseURLs overrides the authorization host and the mobile sites.
// Empty values keep the defaults.
func WithBaseURLs(auth, maimai, chunithm string) Option {
	return func(c *Crawler) {
		if auth != "" {
			c.authBaseURL = auth
		}
		if maimai != "" {
			c.maimaiBaseURL = maimai
		}
		if chunithm != "" {
			c.chunithmBaseURL = chunithm
		}
	}
}

// WithPageInterval sets the minimum spacing between page requests.
func WithPageInterval(d time.Duration) Option {
	return func(c *Crawler) {
		c.pageInterval = d
	}
}

// WithRetryDelays sets the backoff between page fetch attempts.
func WithRetryDelays(delays []time.Duration) Option {
	return func(c *Crawler) {
		c.retryDelays = delays
	}
}

// WithUploadConcurrency bounds the number of uploads in flight.
func WithUploadConcurrency(n int) Option {
	return func(c *Crawler) {
		c.uploadConcurrency = n
	}
}

// WithTargets replaces the upload targets.
func WithTargets(targets ...Target) Option {
	return func(c *Crawler) {
		c.targets = targets
	}
}

// WithFriendCodeExtractor sets the extractor used on the player data page.
// Without one, targets that need a friend code are skipped.
func WithFriendCodeExtractor(e otokit.FriendCodeExtractor) Option {
	return func(c *Crawler) {
		c.extractor = e
	}
}

// NewCrawler creates a Crawler. By default it uploads to diving-fish only.
func NewCrawler(opts ...Option) *Crawler {
	c := &Crawler{
		timeout:           DefaultTimeout,
		authBaseURL:       DefaultAuthBaseURL,
		maimaiBaseURL:     DefaultMaimaiBaseURL,
		chunithmBaseURL:   DefaultChunithmBaseURL,
		pageInterval:      DefaultPageInterval,
		retryDelays:       DefaultRetryDelays(),
		uploadConcurrency: DefaultUploadConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.targets == nil {
		c.targets = []Target{DivingFishTarget(NewDivingFish(c.Client(nil, true), ""))}
	}
	return c
}

// Client returns an http.Client sharing the crawler's transport and
// timeout. followRedirects=false returns 3xx responses to the caller.
func (c *Crawler) Client(jar http.CookieJar, followRedirects bool) *http.Client {
	client := &http.Client{
		Transport: c.transport,
		Timeout:   c.timeout,
		Jar:       jar,
	}
	if !followRedirects {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	return client
}

// AuthorizationURL opens the WeChat authorize page and returns the URL it
// redirects to, downgraded to an http redirect_uri so the callback can be
// intercepted locally.
func (c *Crawler) AuthorizationURL(ctx context.Context) (string, error) {
	endpoint := strings.TrimRight(c.authBaseURL, "/") + "/wc_auth/oauth/authorize/" + gamePath(c.game)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", otokit.WrapError(otokit.EIO, err, "build authorization request")
	}
	setHeaders(req, authHeaders)

	resp, err := c.Client(newJar(), true).Do(req)
	if err != nil {
		return "", otokit.WrapError(otokit.EIO, err, "authorization request failed")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	final := resp.Request.URL.String()
	return strings.ReplaceAll(final, "redirect_uri=https", "redirect_uri=http"), nil
}

// FetchAndUpload logs in with req.AuthURL, fetches the record pages and
// uploads them. Page and upload failures are reported as messages; only a
// failed login or an empty fetch fail the call. An empty fetch reports an
// "[ERROR]" line and returns EIO without emitting Finished.
func (c *Crawler) FetchAndUpload(ctx context.Context, req otokit.UploadRequest, events otokit.Emitter) error {
	authURL := req.AuthURL
	if strings.HasPrefix(authURL, "http://") {
		authURL = "https://" + strings.TrimPrefix(authURL, "http://")
	}

	jar := newJar()

	events.Emit(otokit.AuthStarted())
	events.Emit(otokit.Message("[AUTH] 发起微信登录授权..."))
	if err := c.login(ctx, jar, authURL); err != nil {
		events.Emit(otokit.Message("[ERROR] 凭证已失效或未授权"))
		return otokit.WrapError(otokit.EIO, err, "wechat login failed")
	}
	events.Emit(otokit.Message("[AUTH] 重定向完成，正在获取数据..."))
	events.Emit(otokit.Authenticated())

	s := &session{
		crawler: c,
		req:     req,
		events:  events,
		fetcher: NewFetcher(c.Client(jar, true)),
		limiter: rate.NewLimiter(rate.Every(c.pageInterval), 1),
		pages:   make(map[otokit.Difficulty]string),
	}

	stopped, err := s.fetchAll(ctx)
	if err != nil {
		return err
	}
	if stopped {
		return c.finish(events)
	}

	if len(s.order) == 0 {
		events.Emit(otokit.Message("[ERROR] 获取成绩失败: 异常 - 未获取到有效 HTML 数据，取消上传"))
		return otokit.Errorf(otokit.EIO, "no record pages fetched")
	}

	events.Emit(otokit.Message("[SYSTEM] 成绩获取完毕，开始上传至目标平台..."))
	if err := s.uploadAll(ctx); err != nil {
		return err
	}
	return c.finish(events)
}

func (c *Crawler) finish(events otokit.Emitter) error {
	events.Emit(otokit.Message("[SYSTEM] 传分业务完毕"))
	events.Emit(otokit.Finished())
	return nil
}

// login follows the callback URL without automatic redirects and then
// follows a single Location by hand, collecting the session cookies.
func (c *Crawler) login(ctx context.Context, jar http.CookieJar, authURL string) error {
	client := c.Client(jar, false)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authURL, nil)
	if err != nil {
		return err
	}
	setHeaders(req, loginHeaders)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("login returned HTTP %d", resp.StatusCode)
	}

	location := resp.Header.Get("Location")
	if resp.StatusCode < http.StatusMultipleChoices || resp.StatusCode >= http.StatusBadRequest || location == "" {
		return nil
	}
	next, err := resp.Request.URL.Parse(location)
	if err != nil {
		return fmt.Errorf("login redirect: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodGet, next.String(), nil)
	if err != nil {
		return err
	}
	resp, err = client.Do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// session is the state of one FetchAndUpload call.
type session struct {
	crawler *Crawler
	req     otokit.UploadRequest
	events  otokit.Emitter
	fetcher *Fetcher
	limiter *rate.Limiter

	pages      map[otokit.Difficulty]string
	order      []otokit.Difficulty
	friendCode string
}

func (s *session) baseURL() string {
	if s.req.Game == otokit.GameChunithm {
		return s.crawler.chunithmBaseURL
	}
	return s.crawler.maimaiBaseURL
}

// plan returns the pages to fetch in order: for maimai the player data and
// recent pages first, then the selected difficulties ascending.
func (s *session) plan() []otokit.Difficulty {
	var out []otokit.Difficulty
	if s.req.Game == otokit.GameMaimai {
		out = append(out, otokit.PlayerData, otokit.Recent)
	}
	diffs := s.req.Difficulties
	if len(diffs) == 0 {
		diffs = otokit.AllDifficulties()
	}
	return append(out, diffs.Sorted()...)
}

// fetchAll fetches every planned page. It reports stopped=true when the
// stop flag was raised between pages.
func (s *session) fetchAll(ctx context.Context) (stopped bool, err error) {
	s.events.Emit(otokit.Message("[SYSTEM] 开始获取用户成绩"))

	seen := make(map[uint64]otokit.Difficulty)
	for _, d := range s.plan() {
		if s.req.IsStopped() {
			s.events.Emit(otokit.Message("[SYSTEM] 传分业务终止"))
			return true, nil
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return false, otokit.WrapError(otokit.EINTERRUPTED, err, "crawl interrupted")
		}

		html, err := s.fetch(ctx, d, s.baseURL()+pagePath(s.req.Game, d))
		if err != nil {
			if ctx.Err() != nil {
				return false, ctxError(ctx, err)
			}
			s.events.Emit(otokit.Messagef("[ERROR] 获取{%s}失败: 异常 - %v", d, err))
			continue
		}

		if len(html) < MinPageSize {
			s.events.Emit(otokit.Messagef("[WARN] %s 页面响应过短，可能抓取异常", d))
		}
		sum := xxhash.Sum64String(html)
		if prev, ok := seen[sum]; ok {
			s.events.Emit(otokit.Messagef("[WARN] %s 与 %s 页面内容相同", d, prev))
		} else {
			seen[sum] = d
		}

		s.pages[d] = html
		s.order = append(s.order, d)
		if d == otokit.PlayerData {
			s.extractFriendCode(html)
		}
		s.events.Emit(otokit.Messagef("[DOWNLOAD] 已获取{%s}数据", d))
	}
	return false, nil
}

func (s *session) fetch(ctx context.Context, d otokit.Difficulty, url string) (string, error) {
	return fetchWithRetry(ctx, url, s.fetcher.Fetch, s.crawler.retryDelays, func(attempt int, err error) {
		s.events.Emit(otokit.Messagef("[WARN] 获取{%s}失败，第 %d 次尝试: %v", d, attempt, err))
	})
}

func (s *session) extractFriendCode(html string) {
	if s.crawler.extractor == nil || s.friendCode != "" {
		return
	}
	code, err := s.crawler.extractor.ExtractFriendCode(html)
	if err != nil {
		return
	}
	s.friendCode = code
	s.events.Emit(otokit.Messagef("[SYSTEM] 识别到 FriendCode: %s", code))
}

// lookupFriendCode fetches the friend code page when the player data page
// did not yield one.
func (s *session) lookupFriendCode(ctx context.Context) {
	if s.friendCode != "" || s.crawler.extractor == nil {
		return
	}
	s.events.Emit(otokit.Message("[SYSTEM] 正在尝试获取玩家 Friend Code..."))
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	html, err := s.fetcher.Fetch(ctx, s.baseURL()+friendCodePath)
	if err != nil {
		s.events.Emit(otokit.Messagef("[ERROR] 获取用户信息失败: 网络 - 获取 Friend Code 异常: %v", err))
		return
	}
	code, err := s.crawler.extractor.ExtractFriendCode(html)
	if err != nil {
		s.events.Emit(otokit.Message("[ERROR] 获取用户信息失败: 404 - 未能在页面中找到 Friend Code"))
		return
	}
	s.friendCode = code
	s.events.Emit(otokit.Messagef("[SYSTEM] 识别到 FriendCode: %s", code))
}

// uploadAll sends every fetched page to every target holding a token.
// Individual upload failures are reported as messages.
func (s *session) uploadAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	limit := s.crawler.uploadConcurrency
	if limit <= 0 {
		limit = DefaultUploadConcurrency
	}
	g.SetLimit(limit)

	looked := false
	for _, t := range s.crawler.targets {
		token := ""
		if t.Token != nil {
			token = t.Token(s.req)
		}
		if token == "" {
			continue
		}
		name := t.Uploader.Name()
		if t.NeedsFriendCode {
			if !looked {
				s.lookupFriendCode(ctx)
				looked = true
			}
			if s.friendCode == "" {
				s.events.Emit(otokit.Messagef("[SYSTEM] 未获取到 FriendCode，跳过%s上传", name))
				continue
			}
		}

		s.events.Emit(otokit.Messagef("[SYSTEM] 开始上传至%s服务器", name))
		for _, d := range s.order {
			if s.req.IsStopped() {
				break
			}
			page := otokit.UploadPage{
				Game:       s.req.Game,
				Difficulty: d,
				HTML:       s.pages[d],
				Token:      token,
				FriendCode: s.friendCode,
			}
			uploader := t.Uploader
			g.Go(func() error {
				if err := uploader.Upload(gctx, page); err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					s.events.Emit(otokit.Messagef("[ERROR] [%s] 上传%s失败: 异常 - %v", name, page.Difficulty, err))
					return nil
				}
				s.events.Emit(otokit.Messagef("[UPLOAD] [%s] 上传%s成功", name, page.Difficulty))
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return ctxError(ctx, err)
	}
	return nil
}

// ctxError reports a cancelled context as an interruption.
func ctxError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return otokit.WrapError(otokit.EINTERRUPTED, err, "crawl interrupted")
	}
	return otokit.WrapError(otokit.EIO, err, "crawl failed")
}

package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/otokit"
	otohttp "github.com/fwojciec/otokit/http"
	"github.com/fwojciec/otokit/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const friendCode = "123456789012"

// upload is one request received by a fake tracker endpoint.
type upload struct {
	path  string
	token string
	auth  string
	body  string
}

// site fakes the WeChat authorize host, the arcade mobile sites and both
// score trackers on a single TLS server.
type site struct {
	server *httptest.Server

	mu          sync.Mutex
	pages       []string
	uploads     []upload
	authHeaders http.Header
	failures    map[string]int

	loginStatus int
	failAll     bool
	bodies      map[string]string
}

// newSite starts the fake. configure runs before the server starts.
func newSite(t *testing.T, configure ...func(s *site)) *site {
	t.Helper()
	s := &site{
		failures: make(map[string]int),
		bodies:   make(map[string]string),
	}
	for _, fn := range configure {
		fn(s)
	}
	s.server = httptest.NewTLSServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.server.Close)
	return s
}

func (s *site) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/wc_auth/oauth/authorize/"):
		s.mu.Lock()
		s.authHeaders = r.Header.Clone()
		s.mu.Unlock()
		http.Redirect(w, r, "/oauth/authorize?appid=wx1&redirect_uri=https%3A%2F%2Ftgk-wcaime.wahlap.com%2Fcallback&state="+strings.TrimPrefix(path, "/wc_auth/oauth/authorize/"), http.StatusFound)
	case path == "/oauth/authorize":
		_, _ = w.Write([]byte("authorize"))
	case path == "/callback":
		if s.loginStatus != 0 {
			w.WriteHeader(s.loginStatus)
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "userId", Value: "42", Path: "/"})
		http.Redirect(w, r, "/home/", http.StatusFound)
	case path == "/home/":
		_, _ = w.Write([]byte("home"))
	case strings.HasPrefix(path, "/api/"):
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.uploads = append(s.uploads, upload{
			path:  path,
			token: r.Header.Get("Import-Token"),
			auth:  r.Header.Get("Authorization"),
			body:  string(body),
		})
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"message":"更新成功"}`))
	default:
		if _, err := r.Cookie("userId"); err != nil {
			http.Error(w, "not logged in", http.StatusForbidden)
			return
		}
		uri := r.URL.RequestURI()
		s.mu.Lock()
		s.pages = append(s.pages, uri)
		fail := s.failAll || s.failures[uri] > 0
		if s.failures[uri] > 0 {
			s.failures[uri]--
		}
		body, ok := s.bodies[uri]
		s.mu.Unlock()
		if fail {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		if !ok {
			body = "<html><body>" + strings.Repeat("<div>record</div>", 80) + uri + "</body></html>"
		}
		_, _ = w.Write([]byte(body))
	}
}

func (s *site) AuthHeaders() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authHeaders
}

func (s *site) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.pages...)
}

func (s *site) Uploads() []upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]upload(nil), s.uploads...)
}

func (s *site) callbackURL() string {
	// The crawler upgrades the callback to https, as the real one is
	// handed out with an http redirect_uri.
	return strings.Replace(s.server.URL, "https://", "http://", 1) + "/callback?code=abc"
}

func (s *site) crawler(opts ...otohttp.Option) *otohttp.Crawler {
	client := s.server.Client()
	base := []otohttp.Option{
		otohttp.WithTransport(client.Transport),
		otohttp.WithBaseURLs(s.server.URL, s.server.URL+"/maimai-mobile/", s.server.URL+"/mobile/"),
		otohttp.WithPageInterval(0),
		otohttp.WithRetryDelays(nil),
		otohttp.WithTargets(
			otohttp.DivingFishTarget(otohttp.NewDivingFish(client, s.server.URL)),
			otohttp.LxnsTarget(otohttp.NewLxns(client, s.server.URL)),
		),
		otohttp.WithFriendCodeExtractor(regexExtractor()),
	}
	return otohttp.NewCrawler(append(base, opts...)...)
}

func regexExtractor() *mock.FriendCodeExtractor {
	re := regexp.MustCompile(`\d{12}|\d{9}`)
	return &mock.FriendCodeExtractor{
		ExtractFriendCodeFn: func(html string) (string, error) {
			if code := re.FindString(html); code != "" {
				return code, nil
			}
			return "", otokit.Errorf(otokit.ENOTFOUND, "friend code not found")
		},
	}
}

func playerDataPage(code string) string {
	return "<html><body>" + strings.Repeat("<div>profile</div>", 80) +
		`<div class="see_through_block">` + code + `</div></body></html>`
}

const sortPath = "/maimai-mobile/record/musicSort/search/?search=V&sort=1&playCheck=on&diff="

func TestCrawler_AuthorizationURL(t *testing.T) {
	t.Parallel()

	t.Run("returns the redirected url with an http redirect_uri", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		c := s.crawler()

		got, err := c.AuthorizationURL(context.Background())

		require.NoError(t, err)
		assert.Equal(t, s.server.URL+"/oauth/authorize?appid=wx1&redirect_uri=http%3A%2F%2Ftgk-wcaime.wahlap.com%2Fcallback&state=maimai-dx", got)
		assert.Equal(t, "com.tencent.mm", s.AuthHeaders().Get("X-Requested-With"))
		assert.Contains(t, s.AuthHeaders().Get("User-Agent"), "MicroMessenger")
	})

	t.Run("uses the chunithm path for chunithm", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		c := s.crawler(otohttp.WithGame(otokit.GameChunithm))

		got, err := c.AuthorizationURL(context.Background())

		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(got, "state=chunithm"), got)
	})

	t.Run("returns an io error when the host is unreachable", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		c := s.crawler()
		s.server.Close()

		_, err := c.AuthorizationURL(context.Background())

		require.Error(t, err)
		assert.Equal(t, otokit.EIO, otokit.ErrorCode(err))
	})
}

func TestCrawler_FetchAndUpload(t *testing.T) {
	t.Parallel()

	t.Run("fetches pages in order and uploads them to every target", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.bodies["/maimai-mobile/playerData/"] = playerDataPage(friendCode)
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Password:     "lxns-token",
			Difficulties: otokit.NewDifficultySet(otokit.Expert, otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Equal(t, []string{
			"/maimai-mobile/playerData/",
			"/maimai-mobile/record/",
			sortPath + "0",
			sortPath + "2",
		}, s.Pages())

		var fish, lxns []upload
		for _, u := range s.Uploads() {
			switch u.path {
			case "/api/maimaidxprober/player/update_records_html":
				fish = append(fish, u)
			case "/api/v0/maimai/player/" + friendCode + "/html":
				lxns = append(lxns, u)
			default:
				t.Errorf("unexpected upload to %s", u.path)
			}
		}
		require.Len(t, fish, 4)
		require.Len(t, lxns, 4)
		for _, u := range fish {
			assert.Equal(t, "fish-token", u.token)
		}
		for _, u := range lxns {
			assert.Equal(t, "Bearer lxns-token", u.auth)
		}

		kinds := events.Kinds()
		require.NotEmpty(t, kinds)
		assert.Equal(t, otokit.EventAuthStarted, kinds[0])
		assert.Equal(t, otokit.EventFinished, kinds[len(kinds)-1])
		assert.Contains(t, kinds, otokit.EventAuthenticated)
		assert.NotContains(t, kinds, otokit.EventError)

		msgs := events.Messages()
		assert.Contains(t, msgs, "[SYSTEM] 识别到 FriendCode: "+friendCode)
		assert.Contains(t, msgs, "[DOWNLOAD] 已获取{Expert}数据")
		assert.Contains(t, msgs, "[UPLOAD] [水鱼] 上传Basic成功")
		assert.Contains(t, msgs, "[UPLOAD] [落雪] 上传用户信息成功")
		assert.Equal(t, "[SYSTEM] 传分业务完毕", msgs[len(msgs)-1])
	})

	t.Run("fails with an io error when login is rejected", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.loginStatus = http.StatusForbidden
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username: "fish-token",
			AuthURL:  s.callbackURL(),
		}, events)

		require.Error(t, err)
		assert.Equal(t, otokit.EIO, otokit.ErrorCode(err))
		assert.Contains(t, events.Messages(), "[ERROR] 凭证已失效或未授权")
		assert.NotContains(t, events.Kinds(), otokit.EventFinished)
		assert.NotContains(t, events.Kinds(), otokit.EventAuthenticated)
		assert.Empty(t, s.Pages())
	})

	t.Run("stops before the first page and still finishes", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username: "fish-token",
			AuthURL:  s.callbackURL(),
			Stopped:  func() bool { return true },
		}, events)

		require.NoError(t, err)
		assert.Empty(t, s.Pages())
		assert.Empty(t, s.Uploads())
		assert.Contains(t, events.Messages(), "[SYSTEM] 传分业务终止")
		assert.Contains(t, events.Kinds(), otokit.EventFinished)
	})

	t.Run("stops between pages", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		var checks atomic.Int32

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username: "fish-token",
			AuthURL:  s.callbackURL(),
			Stopped:  func() bool { return checks.Add(1) > 1 },
		}, &mock.Emitter{})

		require.NoError(t, err)
		assert.Equal(t, []string{"/maimai-mobile/playerData/"}, s.Pages())
		assert.Empty(t, s.Uploads())
	})

	t.Run("retries a failing page", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.failures["/maimai-mobile/record/"] = 1
		})
		events := &mock.Emitter{}

		err := s.crawler(otohttp.WithRetryDelays([]time.Duration{time.Millisecond})).FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Difficulties: otokit.NewDifficultySet(otokit.Master),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Equal(t, []string{
			"/maimai-mobile/playerData/",
			"/maimai-mobile/record/",
			"/maimai-mobile/record/",
			sortPath + "3",
		}, s.Pages())
		assert.Contains(t, events.Messages(), "[DOWNLOAD] 已获取{最近游玩}数据")
		assert.Len(t, s.Uploads(), 3)
	})

	t.Run("reports a failed page and continues", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.failures[sortPath+"1"] = 1
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Difficulties: otokit.NewDifficultySet(otokit.Advanced, otokit.ReMaster),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		found := false
		for _, m := range events.Messages() {
			if strings.HasPrefix(m, "[ERROR] 获取{Advance}失败") {
				found = true
			}
		}
		assert.True(t, found, "expected a page failure message")
		assert.Len(t, s.Uploads(), 3)
	})

	t.Run("fails with an io error when no page could be fetched", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.failAll = true
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.Error(t, err)
		assert.Equal(t, otokit.EIO, otokit.ErrorCode(err))
		assert.Contains(t, events.Messages(), "[ERROR] 获取成绩失败: 异常 - 未获取到有效 HTML 数据，取消上传")
		assert.NotContains(t, events.Kinds(), otokit.EventFinished)
		assert.Empty(t, s.Uploads())
	})

	t.Run("warns about short pages", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.bodies[sortPath+"0"] = "<html></html>"
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Contains(t, events.Messages(), "[WARN] Basic 页面响应过短，可能抓取异常")
	})

	t.Run("skips targets without a token", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.bodies["/maimai-mobile/playerData/"] = playerDataPage(friendCode)
		})

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Password:     "lxns-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, &mock.Emitter{})

		require.NoError(t, err)
		uploads := s.Uploads()
		require.Len(t, uploads, 3)
		for _, u := range uploads {
			assert.Equal(t, "/api/v0/maimai/player/"+friendCode+"/html", u.path)
		}
	})

	t.Run("looks up the friend code page when player data has none", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.bodies["/maimai-mobile/playerData/"] = playerDataPage("")
			s.bodies["/maimai-mobile/friend/userFriendCode/"] = playerDataPage("987654321")
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Password:     "lxns-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Contains(t, s.Pages(), "/maimai-mobile/friend/userFriendCode/")
		assert.Contains(t, events.Messages(), "[SYSTEM] 识别到 FriendCode: 987654321")
		uploads := s.Uploads()
		require.Len(t, uploads, 3)
		assert.Equal(t, "/api/v0/maimai/player/987654321/html", uploads[0].path)
	})

	t.Run("skips lxns when no friend code is found", func(t *testing.T) {
		t.Parallel()

		s := newSite(t, func(s *site) {
			s.bodies["/maimai-mobile/playerData/"] = playerDataPage("")
			s.bodies["/maimai-mobile/friend/userFriendCode/"] = playerDataPage("")
		})
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Password:     "lxns-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Contains(t, events.Messages(), "[SYSTEM] 未获取到 FriendCode，跳过落雪上传")
		for _, u := range s.Uploads() {
			assert.Equal(t, "/api/maimaidxprober/player/update_records_html", u.path)
		}
		assert.Len(t, s.Uploads(), 3)
	})

	t.Run("uses the chunithm pages and prober", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		events := &mock.Emitter{}

		err := s.crawler().FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Game:         otokit.GameChunithm,
			Difficulties: otokit.NewDifficultySet(otokit.Utage, otokit.Basic, otokit.Advanced),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		assert.Equal(t, []string{
			"/mobile/record/musicGenre",
			"/mobile/record/musicGenre",
			"/mobile/record/worldsEndList",
		}, s.Pages())
		assert.Contains(t, events.Messages(), "[WARN] Advance 与 Basic 页面内容相同")
		uploads := s.Uploads()
		require.Len(t, uploads, 3)
		for _, u := range uploads {
			assert.Equal(t, "/api/chunithmprober/player/update_records_html", u.path)
		}
	})

	t.Run("reports upload failures as messages", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		failing := &mock.Uploader{
			NameFn: func() string { return "broken" },
			UploadFn: func(context.Context, otokit.UploadPage) error {
				return otokit.Errorf(otokit.EIO, "rejected")
			},
		}
		events := &mock.Emitter{}

		err := s.crawler(otohttp.WithTargets(otohttp.DivingFishTarget(failing))).FetchAndUpload(context.Background(), otokit.UploadRequest{
			Username:     "fish-token",
			Difficulties: otokit.NewDifficultySet(otokit.Basic),
			AuthURL:      s.callbackURL(),
		}, events)

		require.NoError(t, err)
		found := 0
		for _, m := range events.Messages() {
			if strings.HasPrefix(m, "[ERROR] [broken] 上传") {
				found++
			}
		}
		assert.Equal(t, 3, found)
		assert.Contains(t, events.Kinds(), otokit.EventFinished)
	})

	t.Run("returns an interruption when cancelled between pages", func(t *testing.T) {
		t.Parallel()

		s := newSite(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		var checks atomic.Int32

		err := s.crawler(otohttp.WithPageInterval(time.Hour)).FetchAndUpload(ctx, otokit.UploadRequest{
			Username: "fish-token",
			AuthURL:  s.callbackURL(),
			Stopped: func() bool {
				if checks.Add(1) > 1 {
					cancel()
				}
				return false
			},
		}, &mock.Emitter{})

		require.Error(t, err)
		assert.Equal(t, otokit.EINTERRUPTED, otokit.ErrorCode(err))
		assert.Empty(t, s.Uploads())
	})
}

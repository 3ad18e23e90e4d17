// Package http implements otokit.Crawler and otokit.Uploader over
// net/http: WeChat authorization, record page fetching from the arcade's
// mobile site and uploads to the diving-fish and lxns score trackers.
package http

import (
	"net/http"
	"net/http/cookiejar"
	"strconv"

	"github.com/fwojciec/otokit"
	"golang.org/x/net/publicsuffix"
)

// Default endpoints.
const (
	DefaultAuthBaseURL       = "https://tgk-wcaime.wahlap.com"
	DefaultMaimaiBaseURL     = "https://maimai.wahlap.com/maimai-mobile/"
	DefaultChunithmBaseURL   = "https://chunithm.wahlap.com/mobile/"
	DefaultDivingFishBaseURL = "https://www.diving-fish.com"
	DefaultLxnsBaseURL       = "https://maimai.lxns.net"
)

// MinPageSize is the size below which a record page is reported as
// suspiciously short.
const MinPageSize = 1000

const (
	wechatMobileUA = "Mozilla/5.0 (Linux; Android 12; IN2010 Build/RKQ1.211119.001; wv) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Version/4.0 Chrome/86.0.4240.99 XWEB/4317 " +
		"MMWEBSDK/20220903 Mobile Safari/537.36 MMWEBID/363 MicroMessenger/8.0.28.2240(0x28001C57) " +
		"WeChat/arm64 Weixin NetType/WIFI Language/zh_CN ABI/arm64"

	wechatWindowsUA = "Mozilla/5.0 (Windows NT 6.1; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/81.0.4044.138 Safari/537.36 NetType/WIFI " +
		"MicroMessenger/7.0.20.1781(0x6700143B) WindowsWechat(0x6307001e)"

	acceptLanguage = "zh-CN,zh;q=0.9,en-US;q=0.8,en;q=0.7"
)

// authHeaders mimic the WeChat in-app browser opening the authorize page.
var authHeaders = map[string]string{
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                wechatMobileUA,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/wxpic,image/tpg,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
	"X-Requested-With":          "com.tencent.mm",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-User":            "?1",
	"Sec-Fetch-Dest":            "document",
	"Accept-Language":           acceptLanguage,
}

// loginHeaders mimic the desktop WeChat browser following the callback.
var loginHeaders = map[string]string{
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"User-Agent":                wechatWindowsUA,
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.9",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-User":            "?1",
	"Sec-Fetch-Dest":            "document",
	"Accept-Language":           acceptLanguage,
}

func setHeaders(req *http.Request, headers map[string]string) {
	for k, v := range headers {
		req.Header.Set(k, v)
	}
}

// newJar returns an empty cookie jar scoped by the public suffix list.
func newJar() http.CookieJar {
	// cookiejar.New never returns a non-nil error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}

// gamePath returns the authorize path segment for g.
func gamePath(g otokit.Game) string {
	if g == otokit.GameChunithm {
		return "chunithm"
	}
	return "maimai-dx"
}

// pagePath returns the record page path for d, relative to the game's
// mobile base URL.
func pagePath(g otokit.Game, d otokit.Difficulty) string {
	if g == otokit.GameChunithm {
		switch d {
		case otokit.PlayerData:
			return "playerData/"
		case otokit.Recent:
			return "record/"
		case otokit.Utage:
			return "record/worldsEndList"
		default:
			return "record/musicGenre"
		}
	}
	switch d {
	case otokit.PlayerData:
		return "playerData/"
	case otokit.Recent:
		return "record/"
	case otokit.Utage:
		return "record/musicGenre/search/?genre=99&diff=10"
	default:
		return "record/musicSort/search/?search=V&sort=1&playCheck=on&diff=" + strconv.Itoa(int(d))
	}
}

// friendCodePath is the page listing the player's own friend code.
const friendCodePath = "friend/userFriendCode/"

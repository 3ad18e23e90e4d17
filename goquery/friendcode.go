// Package goquery implements otokit.FriendCodeExtractor on top of goquery.
package goquery

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/otokit"
)

// Ensure FriendCodeExtractor implements otokit.FriendCodeExtractor at compile time.
var _ otokit.FriendCodeExtractor = (*FriendCodeExtractor)(nil)

// friendCodePattern matches the 12-digit maimai and 9-digit chunithm codes.
var friendCodePattern = regexp.MustCompile(`\d{12}|\d{9}`)

// DefaultSelectors are the blocks that hold the friend code on the mobile
// sites, most specific first.
var DefaultSelectors = []string{
	".see_through_block",
	".friend_code_block",
	".user_data_friend_code",
}

// FriendCodeExtractor finds the friend code in a player page. It checks the
// known blocks first and falls back to the visible body text.
type FriendCodeExtractor struct {
	selectors []string
}

// NewFriendCodeExtractor creates an extractor. With no selectors,
// DefaultSelectors are used.
func NewFriendCodeExtractor(selectors ...string) *FriendCodeExtractor {
	if len(selectors) == 0 {
		selectors = DefaultSelectors
	}
	return &FriendCodeExtractor{selectors: selectors}
}

// ExtractFriendCode returns the first friend code found, or ENOTFOUND.
func (e *FriendCodeExtractor) ExtractFriendCode(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", otokit.Errorf(otokit.EINVALID, "failed to parse HTML: %v", err)
	}

	for _, selector := range e.selectors {
		var code string
		doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			code = friendCodePattern.FindString(sel.Text())
			return code == ""
		})
		if code != "" {
			return code, nil
		}
	}

	body := doc.Find("body").Clone()
	body.Find("script, style, noscript").Remove()
	if code := friendCodePattern.FindString(body.Text()); code != "" {
		return code, nil
	}

	return "", otokit.Errorf(otokit.ENOTFOUND, "friend code not found")
}

package shell

import (
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

var (
	supportedTags = []language.Tag{language.English, language.BrazilianPortuguese}
	tagMatcher    = language.NewMatcher(supportedTags)
)

// ResolveLang picks the page language from Accept-Language, defaulting to
// English.
func ResolveLang(r *http.Request) string {
	if r == nil {
		return supportedTags[0].String()
	}
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return supportedTags[0].String()
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return supportedTags[0].String()
	}
	_, index, confidence := tagMatcher.Match(tags...)
	if confidence == language.No {
		return supportedTags[0].String()
	}
	return supportedTags[index].String()
}

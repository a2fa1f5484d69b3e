package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// Generated artifacts are written in one of these languages.
var (
	outputLocales = []language.Tag{language.English, language.Vietnamese}
	localeMatcher = language.NewMatcher(outputLocales)
)

// countryHeaders are set by CDNs and proxies in front of the API.
var countryHeaders = []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the request's output locale and best-effort country in the
// context.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			ctx := context.WithValue(r.Context(), LocaleKey, detectLocale(r, defaultLocale, country))
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, country)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// detectLocale honours explicit language headers, then the country, then
// the configured fallback.
func detectLocale(r *http.Request, fallback, country string) string {
	if tags := requestedLanguages(r); len(tags) > 0 {
		_, idx, conf := localeMatcher.Match(tags...)
		if conf != language.No && outputLocales[idx] == language.Vietnamese {
			return "vi"
		}
		return "en"
	}
	switch {
	case strings.EqualFold(country, "VN"):
		return "vi"
	case country != "":
		return "en"
	case fallback != "":
		return fallback
	}
	return "en"
}

// requestedLanguages returns X-Locale when set, otherwise the
// Accept-Language list in preference order.
func requestedLanguages(r *http.Request) []language.Tag {
	if v := strings.TrimSpace(r.Header.Get("X-Locale")); v != "" {
		tag, err := language.Parse(strings.ReplaceAll(v, "_", "-"))
		if err != nil {
			return []language.Tag{language.English}
		}
		return []language.Tag{tag}
	}
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil {
		return nil
	}
	return tags
}

// LocaleFromContext returns the locale chosen by I18N, or "en".
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

func CountryFromContext(ctx context.Context) string {
	v, _ := ctx.Value(CountryKey).(string)
	return v
}

// ResolveCountry picks a country from proxy headers, then an explicit region
// in the requested languages, then the GeoIP lookup.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	for _, key := range countryHeaders {
		if v := strings.TrimSpace(r.Header.Get(key)); v != "" {
			return strings.ToUpper(v)
		}
	}
	tags := requestedLanguages(r)
	for _, tag := range tags {
		if region, conf := tag.Region(); conf == language.Exact {
			return region.String()
		}
	}
	for _, tag := range tags {
		if base, _ := tag.Base(); base.String() == "vi" {
			return "VN"
		}
	}
	if lookup == nil {
		return ""
	}
	country, err := lookup(clientIP(r))
	if err != nil {
		return ""
	}
	return strings.ToUpper(country)
}

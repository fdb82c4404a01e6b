package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/language"
)

// LocaleNegotiator picks the request locale from the journal's supported
// locales. Locale codes use the journal's form ("en", "fr_CA").
type LocaleNegotiator struct {
	codes    []string
	matcher  language.Matcher
	byCode   map[string]string
	fallback string
}

// NewLocaleNegotiator builds a negotiator; fallback must be one of supported
func NewLocaleNegotiator(supported []string, fallback string) *LocaleNegotiator {
	// The fallback goes first so the matcher returns it when nothing matches
	ordered := []string{fallback}
	for _, code := range supported {
		if code != fallback {
			ordered = append(ordered, code)
		}
	}

	tags := make([]language.Tag, 0, len(ordered))
	byCode := make(map[string]string, len(ordered))
	for _, code := range ordered {
		tags = append(tags, language.Make(toBCP47(code)))
		byCode[strings.ToLower(code)] = code
	}

	return &LocaleNegotiator{
		codes:    ordered,
		matcher:  language.NewMatcher(tags),
		byCode:   byCode,
		fallback: fallback,
	}
}

// Negotiate returns the locale for an explicit request value or an
// Accept-Language header. An explicit value must name a supported locale
// exactly; otherwise the header decides.
func (n *LocaleNegotiator) Negotiate(explicit, acceptLanguage string) string {
	if code, ok := n.byCode[strings.ToLower(strings.ReplaceAll(explicit, "-", "_"))]; ok && explicit != "" {
		return code
	}
	if acceptLanguage == "" {
		return n.fallback
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return n.fallback
	}
	_, index, confidence := n.matcher.Match(tags...)
	if confidence == language.No {
		return n.fallback
	}
	return n.codes[index]
}

func toBCP47(code string) string {
	return strings.ReplaceAll(code, "_", "-")
}

// LocaleMiddleware stores the negotiated locale in the request context.
// The "locale" query parameter wins over Accept-Language.
func LocaleMiddleware(n *LocaleNegotiator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := n.Negotiate(r.URL.Query().Get("locale"), r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", toBCP47(locale))
			AddLogFields(r.Context(), zap.String("locale", locale))
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetLocale extracts the request locale from context
func GetLocale(ctx context.Context) (string, bool) {
	locale, ok := ctx.Value(LocaleKey).(string)
	return locale, ok
}

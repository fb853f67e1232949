package middleware

import (
	"context"
	"net/http"

	"golang.org/x/text/language"
)

type localeContextKey struct{}

// LocaleKey stores the negotiated response locale in the request context.
var LocaleKey = localeContextKey{}

var supportedLocales = language.NewMatcher([]language.Tag{
	language.English,
	language.Indonesian,
})

// Locale negotiates the response language from the Accept-Language header.
// It only affects human-readable status messages; identifiers and error
// payloads stay stable.
func Locale(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := defaultLocale
			if locale == "" {
				locale = "en"
			}
			if accept := r.Header.Get("Accept-Language"); accept != "" {
				if tags, _, err := language.ParseAcceptLanguage(accept); err == nil && len(tags) > 0 {
					tag, _, _ := supportedLocales.Match(tags...)
					base, _ := tag.Base()
					locale = base.String()
				}
			}
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

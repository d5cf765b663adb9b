// Package mid holds HTTP middleware for the kmt API.
package mid

import (
	"net/http"
	"strings"
	"time"

	"github.com/OliveiraNt/kmt/internal/utils"
	"github.com/invopop/ctxi18n"
)

const langCookie = "lang"

// I18n puts a locale on the request context. The lang cookie wins over the
// lang query parameter, which wins over Accept-Language. Unknown locales fall
// back to the default catalog.
func I18n(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := requestLang(r)

		ctx, err := ctxi18n.WithLocale(r.Context(), lang)
		if err != nil {
			utils.Logger.Warn("unsupported locale, using default", "lang", lang, "err", err)
		}

		if r.URL.Query().Has(langCookie) {
			if loc := ctxi18n.Locale(ctx); loc != nil {
				http.SetCookie(w, &http.Cookie{
					Name:     langCookie,
					Value:    loc.Code().String(),
					Path:     "/",
					SameSite: http.SameSiteLaxMode,
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
				})
			}
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestLang(r *http.Request) string {
	if c, err := r.Cookie(langCookie); err == nil && c.Value != "" {
		return c.Value
	}
	if q := r.URL.Query().Get(langCookie); q != "" {
		return q
	}
	// First tag of "pt-BR,pt;q=0.9,en;q=0.8".
	al := r.Header.Get("Accept-Language")
	if i := strings.IndexAny(al, ",;"); i >= 0 {
		al = al[:i]
	}
	return strings.TrimSpace(al)
}

package i18n

import "net/http"

const langCookie = "lang"

// Middleware injects a localizer into every request context. A supported
// ?lang= query parameter wins and is remembered in a cookie; otherwise the
// cookie, then Accept-Language, then the default language apply.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if q := r.URL.Query().Get("lang"); isSupported(q) {
			http.SetCookie(w, &http.Cookie{Name: langCookie, Value: q, Path: "/", SameSite: http.SameSiteLaxMode})
			prefs = append(prefs, q)
		} else if c, err := r.Cookie(langCookie); err == nil && isSupported(c.Value) {
			prefs = append(prefs, c.Value)
		}
		if al := r.Header.Get("Accept-Language"); al != "" {
			prefs = append(prefs, al)
		}
		ctx := WithLocalizer(r.Context(), NewLocalizer(prefs...))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func isSupported(lang string) bool {
	if lang == "" {
		return false
	}
	for _, s := range supported {
		if s == lang {
			return true
		}
	}
	return false
}

package shell

import (
	"net/http"

	"github.com/a-h/templ"

	"github.com/textadventure/web/internal/platform/branding"
	"github.com/textadventure/web/internal/services/web/session"
)

// Page holds everything the shell template needs.
type Page struct {
	Title string
	Lang  string
	// Bootstrap is the encoded identity; empty when there is no session.
	Bootstrap string
}

// Component renders the shell document.
func (p Page) Component() templ.Component {
	title := p.Title
	if title == "" {
		title = branding.AppName
	}
	lang := p.Lang
	if lang == "" {
		lang = "en"
	}
	return document(title, lang, p.Bootstrap)
}

// Handler serves the shell for every unmatched GET.
type Handler struct{}

func (Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	page := Page{Lang: ResolveLang(r)}
	if claims, ok := session.ClaimsFromContext(r.Context()); ok {
		bootstrap, err := EncodeBootstrap(claims.Identity())
		if err == nil {
			page.Bootstrap = bootstrap
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := page.Component().Render(r.Context(), w); err != nil {
		http.Error(w, "render shell", http.StatusInternalServerError)
	}
}

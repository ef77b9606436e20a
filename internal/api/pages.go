package api

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"

	"github.com/microcosm-cc/bluemonday"

	"mindmate.app/companion/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

type loginPage struct {
	Error string
	Name  string
}

type chatPage struct {
	Name     string
	Sessions []store.Interaction
}

// replyPolicy is the markup a reply may carry into the page. Everything
// else, scripts and event handlers included, is stripped.
var replyPolicy = bluemonday.NewPolicy().AllowElements("b", "strong", "i", "em", "br", "p")

// sanitizeReply cleans model-generated reply HTML before it reaches a browser.
func sanitizeReply(s string) string {
	return replyPolicy.Sanitize(s)
}

var pageFuncs = template.FuncMap{
	"reply": func(s string) template.HTML { return template.HTML(sanitizeReply(s)) },
}

func parsePages() (*template.Template, error) {
	return template.New("pages").Funcs(pageFuncs).ParseFS(templateFS, "templates/*.html")
}

func staticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

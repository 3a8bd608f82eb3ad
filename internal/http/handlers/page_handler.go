package handlers

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/search"
	"github.com/tbourn/sitesearch/internal/services"
)

//go:embed templates/*.html
var templateFS embed.FS

// LivePath is the websocket endpoint the results page connects to.
const LivePath = "/search/live"

// Templates parses the embedded page templates. Hit titles and excerpts are
// already HTML-safe and are inserted through the "safe" func.
func Templates() *template.Template {
	return template.Must(template.New("").Funcs(template.FuncMap{
		"safe": func(s string) template.HTML { return template.HTML(s) },
	}).ParseFS(templateFS, "templates/*.html"))
}

// pageData feeds both the full page and the "results" partial.
type pageData struct {
	PagePath        string
	LivePath        string
	Query           string
	Category        string
	State           domain.State
	Total           int
	Groups          domain.GroupedResults
	StaticAvailable bool
	Categories      []string
	MinQuery        int
	Error           string
}

func (h *Handlers) newPageData(sess *search.Session, q domain.Query) pageData {
	cats := sess.Categories()
	if q.Category != "" && !slices.Contains(cats, q.Category) {
		cats = append(cats, q.Category)
	}
	return pageData{
		PagePath:        h.opts.PagePath,
		LivePath:        LivePath,
		Query:           q.Text,
		Category:        q.Category,
		State:           domain.StateIdle,
		StaticAvailable: sess.StaticAvailable(),
		Categories:      cats,
		MinQuery:        h.engine.MinQueryRunes(),
	}
}

// SearchPage godoc
// @ID          searchPage
// @Summary     Search results page
// @Description Server-rendered results grouped by category. The page upgrades to live search over a websocket.
// @Tags        Search
// @Produce     html
// @Param       q         query  string  false "Query text"
// @Param       category  query  string  false "Category filter"
// @Success     200  {string}  string "HTML page"
// @Failure     400  {string}  string "HTML page with an error notice"
// @Router      /search [get]
func (h *Handlers) SearchPage(c *gin.Context) {
	ctx := c.Request.Context()
	sess := h.svc.Session(ctx)
	q := queryFrom(c)
	data := h.newPageData(sess, q)

	status := http.StatusOK
	res, err := h.svc.SearchSession(ctx, sess, q)
	switch {
	case errors.Is(err, services.ErrQueryTooLong):
		status = http.StatusBadRequest
		data.Error = "That search is too long. Try fewer words."
	case err != nil:
		status = http.StatusInternalServerError
		data.Error = "Search failed. Please try again."
	default:
		data.State = res.State
		data.Total = res.Total
		data.Groups = res.Groups
		data.StaticAvailable = res.StaticAvailable
	}
	c.HTML(status, "search.html", data)
}

// renderResults executes the "results" partial for a live update.
func (h *Handlers) renderResults(u search.Update) (string, error) {
	data := pageData{
		PagePath:        h.opts.PagePath,
		LivePath:        LivePath,
		Query:           u.Query.Text,
		Category:        u.Query.Category,
		State:           u.State,
		Total:           u.Total,
		Groups:          u.Groups,
		StaticAvailable: u.StaticAvailable,
		MinQuery:        h.engine.MinQueryRunes(),
	}
	var buf bytes.Buffer
	if err := h.tmpl.ExecuteTemplate(&buf, "results", data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

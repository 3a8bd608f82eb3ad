package search

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/tbourn/sitesearch/internal/domain"
)

// Update is one state change pushed to a Renderer.
type Update struct {
	Seq             uint64                `json:"seq"`
	State           domain.State          `json:"state"`
	Query           domain.Query          `json:"query"`
	URL             string                `json:"url"`
	Groups          domain.GroupedResults `json:"groups,omitempty"`
	Total           int                   `json:"total"`
	StaticAvailable bool                  `json:"static_available"`
}

// Renderer receives state updates. Render is never called concurrently by a
// single Controller.
type Renderer interface {
	Render(Update)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Update)

// Render calls f.
func (f RendererFunc) Render(u Update) { f(u) }

// ControllerOptions configures a Controller.
type ControllerOptions struct {
	// Debounce is the trailing delay applied to Input. Defaults to 300ms.
	Debounce time.Duration
	// PagePath is the path of the search page used for shareable URLs.
	// Defaults to "/search".
	PagePath string
	// OnStale is called whenever a superseded result is dropped.
	OnStale func()
	// OnResult is called with every final result that was rendered.
	OnResult func(Result)
}

// Controller is the interaction glue between an input box and the engine:
// it debounces keystrokes, commits queries, mirrors them into a shareable
// URL, and renders only results that belong to the latest commit. Each
// commit also cancels the previous in-flight search.
type Controller struct {
	engine   *Engine
	session  *Session
	render   Renderer
	debounce *Debouncer
	page     string
	onStale  func()
	onResult func(Result)
	base     context.Context

	mu        sync.Mutex
	text      string
	category  string
	committed string
	cancel    context.CancelFunc

	renderMu sync.Mutex
}

// NewController wires a controller for one page view. ctx bounds every search
// the controller starts.
func NewController(ctx context.Context, engine *Engine, session *Session, render Renderer, opts ControllerOptions) *Controller {
	page := opts.PagePath
	if page == "" {
		page = "/search"
	}
	return &Controller{
		engine:   engine,
		session:  session,
		render:   render,
		debounce: NewDebouncer(opts.Debounce),
		page:     page,
		onStale:  opts.OnStale,
		onResult: opts.OnResult,
		base:     ctx,
	}
}

// Input handles a change of the search box. Text shorter than the minimum
// resets to idle immediately; anything else commits after the debounce delay.
func (c *Controller) Input(text string) {
	text = strings.TrimSpace(text)
	c.mu.Lock()
	c.text = text
	c.mu.Unlock()

	if !c.engine.Searchable(text) {
		c.debounce.Cancel()
		c.reset()
		return
	}
	c.debounce.Trigger(func() { c.commit(text) })
}

// SetCategory changes the filter and, when a query has been committed,
// re-runs it at once without debouncing.
func (c *Controller) SetCategory(category string) {
	category = strings.TrimSpace(category)
	c.mu.Lock()
	c.category = category
	committed := c.committed
	c.mu.Unlock()

	if committed != "" {
		c.commit(committed)
	}
}

// Load restores state from a URL query string (e.g. "q=water&category=News")
// and searches immediately when it carries a long enough query.
func (c *Controller) Load(rawQuery string) {
	text, category := ParseShareQuery(rawQuery)

	c.mu.Lock()
	c.text = text
	c.category = category
	c.mu.Unlock()

	if !c.engine.Searchable(text) {
		c.reset()
		return
	}
	c.commit(text)
}

// Restore adopts the state of a URL query string without searching. It is
// used when the page was already rendered with results for that URL; a later
// SetCategory re-runs the restored query.
func (c *Controller) Restore(rawQuery string) {
	text, category := ParseShareQuery(rawQuery)
	c.debounce.Cancel()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text = text
	c.category = category
	c.committed = ""
	if c.engine.Searchable(text) {
		c.committed = text
	}
}

// Flush commits a pending debounced input now. It reports whether one was
// pending.
func (c *Controller) Flush() bool { return c.debounce.Flush() }

// Close stops pending work and cancels any in-flight search.
func (c *Controller) Close() {
	c.debounce.Cancel()
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
}

// State returns the current text, category and last committed query.
func (c *Controller) State() (text, category, committed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.category, c.committed
}

func (c *Controller) reset() {
	c.mu.Lock()
	// Advance the sequence before cancelling so the cancelled search can
	// only ever emit a stale result.
	seq := c.session.Next()
	c.committed = ""
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	category := c.category
	c.mu.Unlock()

	c.emit(Update{
		Seq:             seq,
		State:           domain.StateIdle,
		Query:           domain.Query{Category: category},
		URL:             ShareURL(c.page, "", category),
		StaticAvailable: c.session.StaticAvailable(),
	})
}

func (c *Controller) commit(text string) {
	c.mu.Lock()
	seq := c.session.Next()
	c.committed = text
	if c.cancel != nil {
		c.cancel()
	}
	ctx, cancel := context.WithCancel(c.base)
	c.cancel = cancel
	q := domain.Query{Text: text, Category: c.category}
	c.mu.Unlock()

	link := ShareURL(c.page, q.Text, q.Category)
	c.emit(Update{
		Seq:             seq,
		State:           domain.StateLoading,
		Query:           q,
		URL:             link,
		StaticAvailable: c.session.StaticAvailable(),
	})

	res := c.engine.Run(ctx, c.session, seq, q)
	rendered := c.emit(Update{
		Seq:             res.Seq,
		State:           res.State,
		Query:           res.Query,
		URL:             link,
		Groups:          res.Groups,
		Total:           res.Total,
		StaticAvailable: res.StaticAvailable,
	})
	if rendered && c.onResult != nil {
		c.onResult(res)
	}
}

// emit renders u unless a newer commit has superseded it, and reports
// whether it was rendered.
func (c *Controller) emit(u Update) bool {
	c.renderMu.Lock()
	defer c.renderMu.Unlock()
	if !c.session.IsCurrent(u.Seq) {
		if c.onStale != nil {
			c.onStale()
		}
		return false
	}
	c.render.Render(u)
	return true
}

// ShareURL builds the bookmarkable search URL for page. An empty text
// removes the q parameter; an empty category removes the category parameter.
func ShareURL(page, text, category string) string {
	u := url.URL{Path: page}
	vals := url.Values{}
	if text != "" {
		vals.Set("q", text)
	}
	if category != "" {
		vals.Set("category", category)
	}
	u.RawQuery = vals.Encode()
	return u.String()
}

// ParseShareQuery reads q and category from a URL query string, with or
// without the leading '?'.
func ParseShareQuery(rawQuery string) (text, category string) {
	vals, err := url.ParseQuery(strings.TrimPrefix(rawQuery, "?"))
	if err != nil {
		vals = url.Values{}
	}
	return strings.TrimSpace(vals.Get("q")), strings.TrimSpace(vals.Get("category"))
}

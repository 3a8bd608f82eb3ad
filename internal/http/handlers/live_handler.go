package handlers

import (
	"context"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tbourn/sitesearch/internal/domain"
	"github.com/tbourn/sitesearch/internal/http/middleware"
	"github.com/tbourn/sitesearch/internal/observability"
	"github.com/tbourn/sitesearch/internal/search"
)

const (
	liveReadLimit    = 4 << 10
	liveIdleTimeout  = 10 * time.Minute
	liveWriteTimeout = 10 * time.Second
	liveQueue        = 16
)

// Client frame types.
const (
	liveInput    = "input"
	liveCategory = "category"
	liveLoad     = "load"
	liveRestore  = "restore"
	liveFlush    = "flush"
)

// LiveRequest is a client frame on /search/live.
//
//	{"type":"input","text":"wat"}
//	{"type":"category","category":"Labs"}
//	{"type":"load","query":"?q=water&category=Labs"}
//	{"type":"restore","query":"?q=water"}
//	{"type":"flush"}
type LiveRequest struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Category string `json:"category,omitempty"`
	Query    string `json:"query,omitempty"`
}

// LiveFrame is a server frame on /search/live. Type is the engine state
// (idle, loading, results, empty) or "error".
type LiveFrame struct {
	Type            string                `json:"type"`
	Seq             uint64                `json:"seq,omitempty"`
	Query           string                `json:"query"`
	Category        string                `json:"category"`
	URL             string                `json:"url,omitempty"`
	Groups          domain.GroupedResults `json:"groups,omitempty"`
	Total           int                   `json:"total"`
	StaticAvailable bool                  `json:"static_available"`
	HTML            string                `json:"html,omitempty"`
	Message         string                `json:"message,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return len(origins) == 0 || origin == "" || slices.Contains(origins, origin)
		},
	}
}

// LiveSearch godoc
// @ID          liveSearch
// @Summary     Live search websocket
// @Description Debounced search-as-you-type. Each connection is one page view with its own sequence counter; superseded results are never sent.
// @Tags        Search
// @Success     101  {string}  string "Switching Protocols"
// @Router      /search/live [get]
func (h *Handlers) LiveSearch(c *gin.Context) {
	lg := middleware.LoggerFrom(c)
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error.
		lg.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(liveReadLimit)

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer cancel()

	frames := make(chan LiveFrame, liveQueue)
	push := func(f LiveFrame) {
		select {
		case frames <- f:
		case <-ctx.Done():
		}
	}

	ctrl := search.NewController(ctx, h.engine, h.svc.Session(ctx), search.RendererFunc(func(u search.Update) {
		f := LiveFrame{
			Type:            string(u.State),
			Seq:             u.Seq,
			Query:           u.Query.Text,
			Category:        u.Query.Category,
			URL:             u.URL,
			Groups:          u.Groups,
			Total:           u.Total,
			StaticAvailable: u.StaticAvailable,
		}
		html, err := h.renderResults(u)
		if err != nil {
			lg.Error().Err(err).Msg("render live results")
		}
		f.HTML = html
		push(f)
	}), search.ControllerOptions{
		Debounce: h.opts.Debounce,
		PagePath: h.opts.PagePath,
		OnStale:  observability.StaleDropped,
		OnResult: func(res search.Result) { h.svc.Record(ctx, res) },
	})
	defer ctrl.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case f := <-frames:
				_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
				if err := conn.WriteJSON(f); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveIdleTimeout))
		var req LiveRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lg.Debug().Err(err).Msg("live search connection closed")
			}
			break
		}

		// Every frame that carries query text passes the length cap.
		q := domain.Query{Text: req.Text}
		if req.Type == liveLoad || req.Type == liveRestore {
			q.Text, q.Category = search.ParseShareQuery(req.Query)
		}
		if _, err := h.svc.Validate(q); err != nil {
			push(LiveFrame{Type: "error", Query: q.Text, Category: q.Category, Message: err.Error()})
			continue
		}

		switch req.Type {
		case liveInput:
			ctrl.Input(req.Text)
		case liveCategory:
			ctrl.SetCategory(req.Category)
		case liveLoad:
			ctrl.Load(req.Query)
		case liveRestore:
			ctrl.Restore(req.Query)
		case liveFlush:
			ctrl.Flush()
		default:
			push(LiveFrame{Type: "error", Message: "unknown frame type"})
		}
	}

	ctrl.Close()
	cancel()
	<-writerDone
}

package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tbourn/sitesearch/internal/domain"
)

func TestCacheBustToken(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	ts := time.Date(2024, 3, 9, 1, 30, 0, 0, loc) // 23:30 UTC on the 8th
	if got := CacheBustToken(ts); got != "2024030823" {
		t.Fatalf("token = %q", got)
	}
}

func TestHTTPIndexSource_FetchesWithVersionToken(t *testing.T) {
	var gotV, gotAccept string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/js/search-index.json" {
			http.NotFound(w, r)
			return
		}
		gotV = r.URL.Query().Get("v")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"title":"Jane Doe","url":"/staff/jane","content":"Jane Doe geologist","type":"staff","category":"Staff Directory","subtitle":"Geologist"},
			{"title":"","url":"/broken","content":"x","type":"page","category":"Pages"}
		]`))
	}))
	defer srv.Close()

	src := NewHTTPIndexSource(srv.URL+"/js/search-index.json", srv.Client())
	src.Now = func() time.Time { return time.Date(2025, 1, 2, 15, 4, 0, 0, time.UTC) }

	recs, err := src.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	if gotV != "2025010215" || gotAccept != "application/json" {
		t.Fatalf("v=%q accept=%q", gotV, gotAccept)
	}
	if len(recs) != 2 || recs[0].Subtitle != "Geologist" || recs[0].Type != domain.TypeStaff {
		t.Fatalf("decoded = %#v", recs)
	}

	// LoadIndex drops the record without a title.
	loaded := LoadIndex(context.Background(), src, nopLogger())
	if len(loaded) != 1 || loaded[0].URL != "/staff/jane" {
		t.Fatalf("loaded = %#v", loaded)
	}
}

func TestHTTPIndexSource_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad-json":
			_, _ = w.Write([]byte(`{not json`))
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	_, err := NewHTTPIndexSource(srv.URL+"/down", srv.Client()).Records(context.Background())
	if !errors.Is(err, ErrIndexStatus) {
		t.Fatalf("expected ErrIndexStatus, got %v", err)
	}
	if _, err := NewHTTPIndexSource(srv.URL+"/bad-json", nil).Records(context.Background()); err == nil {
		t.Fatalf("expected decode error")
	}
	if _, err := NewHTTPIndexSource("://bad", nil).Records(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestLoadIndex_DegradesToEmpty(t *testing.T) {
	src := IndexSourceFunc(func(context.Context) ([]domain.SearchRecord, error) {
		return nil, errors.New("boom")
	})
	if got := LoadIndex(context.Background(), src, nopLogger()); len(got) != 0 {
		t.Fatalf("expected empty index, got %d", len(got))
	}
	if got := LoadIndex(context.Background(), nil, nopLogger()); got != nil {
		t.Fatalf("nil source should yield nil")
	}
}

func TestSelectStatic(t *testing.T) {
	p, ok := SelectStatic(context.Background(), nil, nopLogger())
	if ok {
		t.Fatalf("nil provider must be unavailable")
	}
	if _, isNoop := p.(NoopStatic); !isNoop {
		t.Fatalf("expected NoopStatic, got %T", p)
	}
	if _, ok := SelectStatic(context.Background(), NoopStatic{}, nopLogger()); ok {
		t.Fatalf("NoopStatic must report unavailable")
	}
	good := &fakeStatic{}
	p, ok = SelectStatic(context.Background(), good, nopLogger())
	if !ok || p != StaticProvider(good) {
		t.Fatalf("expected the real provider to be selected")
	}
}

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/models"
)

func newTestClient(t *testing.T, h http.Handler) (*Client, *[]time.Duration) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), slog.New(slog.NewTextHandler(io.Discard, nil)), Options{
		BaseURL: srv.URL,
		Token:   "secret",
	})
	var slept []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return c, &slept
}

func records(from, n int) []models.DocumentRecord {
	out := make([]models.DocumentRecord, n)
	for i := range out {
		id := int64(from + i)
		out[i] = models.DocumentRecord{ID: id, Title: "doc", CanonicalURL: "https://r/" + string(rune('a'+i%26))}
	}
	return out
}

func writePage(t *testing.T, w http.ResponseWriter, recs []models.DocumentRecord, next string) {
	t.Helper()
	page := map[string]any{"count": len(recs), "results": recs, "nextPageCursor": nil}
	if next != "" {
		page["nextPageCursor"] = next
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(page); err != nil {
		t.Errorf("encode: %v", err)
	}
}

func TestFetchAll_PaginationWithRateLimit(t *testing.T) {
	var mu sync.Mutex
	calls := map[string]int{}
	c, slept := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Token secret" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Path != "/export/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		cursor := r.URL.Query().Get("pageCursor")
		mu.Lock()
		calls[cursor]++
		n := calls[cursor]
		mu.Unlock()

		switch cursor {
		case "":
			writePage(t, w, records(1, 1000), "p2")
		case "p2":
			if n == 1 {
				w.Header().Set("Retry-After", "3")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			writePage(t, w, records(1001, 1000), "p3")
		case "p3":
			writePage(t, w, records(2001, 42), "")
		default:
			t.Errorf("unexpected cursor %q", cursor)
		}
	}))

	got, err := c.FetchAll(context.Background(), "export", nil, nil)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(got) != 2042 {
		t.Fatalf("records = %d, want 2042", len(got))
	}
	if got[0].ID != 1 || got[2041].ID != 2042 {
		t.Errorf("order broken: first %d last %d", got[0].ID, got[2041].ID)
	}
	if calls[""] != 1 || calls["p2"] != 2 || calls["p3"] != 1 {
		t.Errorf("calls = %v, want exactly one retry of p2", calls)
	}
	if len(*slept) != 1 || (*slept)[0] != 3*time.Second {
		t.Errorf("slept = %v, want [3s]", *slept)
	}
}

func TestFetchPage_RetryAfterFallback(t *testing.T) {
	n := 0
	c, slept := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if n == 1 {
			w.Header().Set("Retry-After", "soon")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(t, w, records(1, 1), "")
	}))
	if _, err := c.FetchPage(context.Background(), Query{Kind: "export"}); err != nil {
		t.Fatalf("FetchPage: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != time.Second {
		t.Errorf("slept = %v, want [1s]", *slept)
	}
}

func TestFetchAll_FatalStatus(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageCursor") == "p2" {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		writePage(t, w, records(1, 10), "p2")
	}))
	got, err := c.FetchAll(context.Background(), "export", nil, nil)
	var fe *apperr.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FetchError", err)
	}
	if fe.StatusCode != http.StatusInternalServerError || fe.Body != "boom" {
		t.Errorf("FetchError = %+v", fe)
	}
	if got != nil {
		t.Errorf("partial result returned: %d records", len(got))
	}
}

func TestFetchDelta_RefetchesByID(t *testing.T) {
	since := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	var requests []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		requests = append(requests, r.URL.RawQuery)
		switch {
		case q.Get("updatedAfter") != "":
			if q.Get("updatedAfter") != "2024-06-01T12:00:00Z" {
				t.Errorf("updatedAfter = %q", q.Get("updatedAfter"))
			}
			writePage(t, w, []models.DocumentRecord{
				{ID: 5, Highlights: []models.Highlight{{ID: 50}}},
				{ID: 9, Highlights: []models.Highlight{{ID: 90}}},
			}, "")
		case q.Get("ids") != "":
			if q.Get("ids") != "5,9" {
				t.Errorf("ids = %q, want 5,9", q.Get("ids"))
			}
			writePage(t, w, []models.DocumentRecord{
				{ID: 5, Highlights: []models.Highlight{{ID: 48}, {ID: 49}, {ID: 50}}},
				{ID: 9, Highlights: []models.Highlight{{ID: 88}, {ID: 89}, {ID: 90}}},
			}, "")
		default:
			t.Errorf("unexpected request %q", r.URL.RawQuery)
		}
	}))

	got, err := c.FetchDelta(context.Background(), "export", since)
	if err != nil {
		t.Fatalf("FetchDelta: %v", err)
	}
	if len(requests) != 2 {
		t.Fatalf("requests = %v, want 2", requests)
	}
	if strings.Contains(requests[1], "updatedAfter") {
		t.Errorf("second request is time bounded: %q", requests[1])
	}
	if len(got) != 2 || len(got[0].Highlights) != 3 || len(got[1].Highlights) != 3 {
		t.Errorf("got %+v, want full highlight sets", got)
	}
}

func TestFetchDelta_NothingChanged(t *testing.T) {
	calls := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		writePage(t, w, nil, "")
	}))
	got, err := c.FetchDelta(context.Background(), "export", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 || calls != 1 {
		t.Errorf("got %d records in %d calls", len(got), calls)
	}
}

func TestFetchAll_ChunksLargeIDFilters(t *testing.T) {
	var chunks []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunks = append(chunks, r.URL.Query().Get("ids"))
		writePage(t, w, nil, "")
	}))
	ids := make([]int64, 250)
	for i := range ids {
		ids[i] = int64(i + 1)
	}
	if _, err := c.FetchAll(context.Background(), "export", nil, ids); err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chunks))
	}
	if !strings.HasPrefix(chunks[2], "201,") {
		t.Errorf("third chunk = %q", chunks[2])
	}
}

func TestValidateToken(t *testing.T) {
	status := http.StatusNoContent
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.WriteHeader(status)
	}))

	ok, err := c.ValidateToken(context.Background())
	if err != nil || !ok || !c.TokenValid() {
		t.Fatalf("valid token: ok=%v err=%v cached=%v", ok, err, c.TokenValid())
	}

	status = http.StatusUnauthorized
	ok, err = c.ValidateToken(context.Background())
	if err != nil || ok || c.TokenValid() {
		t.Fatalf("invalid token: ok=%v err=%v cached=%v", ok, err, c.TokenValid())
	}

	status = http.StatusBadGateway
	if _, err := c.ValidateToken(context.Background()); err == nil {
		t.Fatal("expected error for 502")
	}
}

type countingObserver struct{ pages, limits, errs int }

func (o *countingObserver) ObservePage(string)       { o.pages++ }
func (o *countingObserver) ObserveRateLimit(string)  { o.limits++ }
func (o *countingObserver) ObserveFetchError(string) { o.errs++ }

func TestObserver(t *testing.T) {
	n := 0
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n++
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writePage(t, w, records(1, 1), "")
	}))
	obs := &countingObserver{}
	c.SetObserver(obs)
	if _, err := c.FetchAll(context.Background(), "export", nil, nil); err != nil {
		t.Fatal(err)
	}
	if obs.pages != 1 || obs.limits != 1 || obs.errs != 0 {
		t.Errorf("observer = %+v", obs)
	}
}

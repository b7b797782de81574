package enrich

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/dukerupert/eventsync/internal/fetch"
	"github.com/dukerupert/eventsync/internal/model"
)

const richPage = `<!DOCTYPE html>
<html><head>
<title>Jazz Night</title>
<meta name="description" content="Plain description.">
<meta property="og:description" content="Jazz Night - dinner &amp; music   on the patio.">
<meta property="og:image" content="/img/jazz.jpg">
</head>
<body><meta property="og:image" content="/img/ignored.jpg"></body></html>`

const plainPage = `<html><head><meta name="Description" content="Weekly market downtown."></head><body></body></html>`

func TestParseMeta(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Meta
	}{
		{
			name: "og tags win",
			body: richPage,
			want: Meta{Image: "https://example.com/img/jazz.jpg", Description: "Jazz Night - dinner & music on the patio."},
		},
		{
			name: "description fallback",
			body: plainPage,
			want: Meta{Description: "Weekly market downtown."},
		},
		{
			name: "absolute image kept",
			body: `<head><meta property="og:image" content="https://cdn.example.org/a.png"/></head>`,
			want: Meta{Image: "https://cdn.example.org/a.png"},
		},
		{
			name: "nothing",
			body: `<p>no head at all</p>`,
			want: Meta{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseMeta([]byte(tt.body), "https://example.com/events/jazz")
			if got != tt.want {
				t.Errorf("ParseMeta = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEnrich(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/jazz":
			io.WriteString(w, richPage)
		case "/market":
			io.WriteString(w, plainPage)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	events := []model.CanonicalEvent{
		{ID: "a", Title: "Jazz Night", URL: srv.URL + "/jazz"},
		{ID: "b", Title: "Jazz Night II", URL: srv.URL + "/jazz", Description: "Own text"},
		{ID: "c", Title: "Market", URL: srv.URL + "/market", ImageURL: "https://img/x.png"},
		{ID: "d", Title: "Gone", URL: srv.URL + "/missing"},
		{ID: "e", Title: "Complete", URL: srv.URL + "/jazz", ImageURL: "keep.png", Description: "keep"},
		{ID: "f", Title: "No URL"},
	}

	client := fetch.New(fetch.WithCourtesyDelay(0), fetch.WithRetries(0, 0))
	e := New(client, WithWorkers(2), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	stats := e.Enrich(context.Background(), events)

	if stats.Candidates != 4 || stats.Pages != 2 || stats.Enriched != 3 || stats.Failed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if n := hits.Load(); n != 3 {
		t.Errorf("requests = %d, want 3 (one per distinct url)", n)
	}

	if events[0].ImageURL != srv.URL+"/img/jazz.jpg" {
		t.Errorf("a image = %q", events[0].ImageURL)
	}
	if events[0].Description != "Dinner & music on the patio." {
		t.Errorf("a description = %q", events[0].Description)
	}
	if events[1].Description != "Own text" {
		t.Errorf("b description overwritten: %q", events[1].Description)
	}
	if events[2].ImageURL != "https://img/x.png" || events[2].Description != "Weekly market downtown." {
		t.Errorf("c = %q / %q", events[2].ImageURL, events[2].Description)
	}
	if events[3].ImageURL != "" || events[3].Description != "" {
		t.Errorf("d changed after failed fetch: %+v", events[3])
	}
	if events[4].Description != "keep" {
		t.Errorf("e description = %q", events[4].Description)
	}
}

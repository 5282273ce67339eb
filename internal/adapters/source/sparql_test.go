package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

func TestSelectFlattensBindings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("query") == "" {
			t.Fatalf("expected query form field")
		}
		w.Header().Set("Content-Type", "application/sparql-results+json")
		w.Write([]byte(`{
  "head": {"vars": ["s", "label"]},
  "results": {"bindings": [
    {"s": {"type": "uri", "value": "http://example.org/1"}, "label": {"type": "literal", "value": "maize"}},
    {"s": {"type": "uri", "value": "http://example.org/2"}, "label": {"type": "literal", "value": "wheat"}}
  ]}
}`))
	}))
	defer server.Close()

	client := &sparqlClient{httpClient: server.Client()}
	rows, err := client.Select(context.Background(), server.URL, "SELECT ?s ?label WHERE { ?s ?p ?label }")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0]["s"] != "http://example.org/1" || rows[0]["label"] != "maize" {
		t.Fatalf("binding not flattened: %v", rows[0])
	}
}

func TestSelectAskResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"head": {}, "boolean": true}`))
	}))
	defer server.Close()

	client := &sparqlClient{httpClient: server.Client()}
	rows, err := client.Select(context.Background(), server.URL, "ASK { ?s ?p ?o }")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(rows) != 1 || rows[0]["boolean"] != true {
		t.Fatalf("expected boolean row, got %v", rows)
	}
}

func TestSelectMapsEndpointErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "parse error", http.StatusBadRequest)
	}))
	defer server.Close()

	client := &sparqlClient{httpClient: server.Client()}
	_, err := client.Select(context.Background(), server.URL, "not sparql")
	if domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for 400, got %v", err)
	}

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer down.Close()

	_, err = client.Select(context.Background(), down.URL, "SELECT * WHERE { ?s ?p ?o }")
	if domain.KindOf(err) != domain.KindBackendUnavailable {
		t.Fatalf("expected backend unavailable for 500, got %v", err)
	}
}

func TestNormalizeQueryEndpoint(t *testing.T) {
	cases := []struct {
		in     string
		suffix string
		want   string
	}{
		{"http://oxigraph:7878", "/query", "http://oxigraph:7878/query"},
		{"http://oxigraph:7878/", "/query", "http://oxigraph:7878/query"},
		{"http://oxigraph:7878/query", "/query", "http://oxigraph:7878/query"},
		{"http://ontop:8080", "/sparql", "http://ontop:8080/sparql"},
		{"http://ontop:8080/sparql", "/sparql", "http://ontop:8080/sparql"},
	}
	for _, c := range cases {
		if got := normalizeQueryEndpoint(c.in, c.suffix); got != c.want {
			t.Errorf("normalizeQueryEndpoint(%q, %q) = %q, want %q", c.in, c.suffix, got, c.want)
		}
	}
}

func TestRewriteEntityPrefix(t *testing.T) {
	in := "SELECT ?o WHERE { pafh:Q42 ?p ?o }"
	want := "SELECT ?o WHERE { http://www.wikidata.org/entity/Q42 ?p ?o }"
	if got := RewriteEntityPrefix(in); got != want {
		t.Fatalf("rewrite = %q, want %q", got, want)
	}
}

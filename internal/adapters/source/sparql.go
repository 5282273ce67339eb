package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// sparqlClient posts SPARQL queries and flattens the standard results-JSON
// bindings into plain field maps.
type sparqlClient struct {
	httpClient *http.Client
}

type sparqlResponse struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]struct {
			Type  string `json:"type"`
			Value string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

func (c *sparqlClient) Select(ctx context.Context, endpoint, query string) ([]map[string]any, error) {
	form := url.Values{}
	form.Set("query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/sparql-results+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrBackendUnavailable("sparql_unreachable", "sparql endpoint did not respond")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, domain.ErrBackendUnavailable("sparql_read_failed", "failed reading sparql response")
	}
	if resp.StatusCode == http.StatusBadRequest {
		return nil, domain.ErrInvalidInput("sparql_rejected", "endpoint rejected the query")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrBackendUnavailable("sparql_status", "sparql endpoint returned status %d", resp.StatusCode)
	}

	var parsed sparqlResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.ErrBackendUnavailable("sparql_malformed", "sparql endpoint returned malformed results")
	}

	if parsed.Boolean != nil {
		return []map[string]any{{"boolean": *parsed.Boolean}}, nil
	}

	rows := make([]map[string]any, 0, len(parsed.Results.Bindings))
	for _, binding := range parsed.Results.Bindings {
		row := make(map[string]any, len(binding))
		for field, cell := range binding {
			row[field] = cell.Value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// normalizeQueryEndpoint appends the well-known query path when the stored
// endpoint is a bare server URL.
func normalizeQueryEndpoint(endpoint, suffix string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if strings.HasSuffix(trimmed, suffix) {
		return trimmed
	}
	return trimmed + suffix
}

func sparqlLiteral(value string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return `"` + escaped + `"`
}

func sparqlIRI(value string) string {
	escaped := strings.NewReplacer("<", "", ">", "").Replace(strings.TrimSpace(value))
	return "<" + escaped + ">"
}

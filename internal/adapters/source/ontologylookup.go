package source

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// OntologyLookupAdapter fronts an OLS-style term lookup service. It is
// search-only; structured queries are not part of the lookup contract.
type OntologyLookupAdapter struct {
	name       string
	apiURL     string
	httpClient *http.Client
}

func NewOntologyLookupAdapter(src domain.Source, httpClient *http.Client) *OntologyLookupAdapter {
	apiURL := src.Connection.APIURL
	if apiURL == "" {
		apiURL = src.Connection.EndpointURL
	}
	return &OntologyLookupAdapter{
		name:       src.Key(),
		apiURL:     strings.TrimRight(apiURL, "/"),
		httpClient: httpClient,
	}
}

func (a *OntologyLookupAdapter) Name() string            { return a.name }
func (a *OntologyLookupAdapter) Kind() domain.SourceKind { return domain.KindOntologyLookup }

type termSearchResponse struct {
	Response struct {
		Docs []struct {
			Label        string   `json:"label"`
			OboID        string   `json:"obo_id"`
			IRI          string   `json:"iri"`
			Description  []string `json:"description"`
			OntologyName string   `json:"ontology_name"`
		} `json:"docs"`
	} `json:"response"`
}

func (a *OntologyLookupAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("rows", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrBackendUnavailable("ontology_lookup_unreachable", "term lookup service did not respond")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrBackendUnavailable("ontology_lookup_status", "term lookup service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.ErrBackendUnavailable("ontology_lookup_read_failed", "failed reading term lookup response")
	}

	var parsed termSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.ErrBackendUnavailable("ontology_lookup_malformed", "term lookup service returned malformed results")
	}

	results := make([]domain.SearchResult, 0, len(parsed.Response.Docs))
	for i, doc := range parsed.Response.Docs {
		id := doc.IRI
		if id == "" {
			id = doc.OboID
		}
		description := ""
		if len(doc.Description) > 0 {
			description = doc.Description[0]
		}
		results = append(results, domain.SearchResult{
			Label:       doc.Label,
			ID:          id,
			Description: description,
			Author:      doc.OntologyName,
			Confidence:  0.85 - float64(i)*0.02,
			Source:      a.name,
		})
	}
	return results, nil
}

func (a *OntologyLookupAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	return domain.QueryResult{}, domain.ErrInvalidInput("query_unsupported", "source %q only supports search", a.name)
}

func (a *OntologyLookupAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	results, err := a.Search(ctx, nodeID, 1)
	if err != nil {
		return domain.MapNode{}, err
	}
	if len(results) == 0 {
		return domain.MapNode{}, domain.ErrNotFound("node_not_found", "term %q not found", nodeID)
	}
	return domain.MapNode{
		ID:          results[0].ID,
		Label:       results[0].Label,
		Description: results[0].Description,
		NodeType:    "ontology_term",
	}, nil
}

func (a *OntologyLookupAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	return []domain.Relationship{}, nil
}

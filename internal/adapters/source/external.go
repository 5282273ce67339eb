package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// EntityPrefix is the internal compact prefix accepted in client queries.
// It expands to the remote knowledge base's entity namespace before the
// query leaves the gateway.
const (
	EntityPrefix    = "pafh:"
	EntityNamespace = "http://www.wikidata.org/entity/"
)

// ExternalAPIAdapter fronts a remote knowledge service that exposes both an
// entity-search API and a SPARQL endpoint (the wikidata shape).
type ExternalAPIAdapter struct {
	name       string
	apiURL     string
	sparqlURL  string
	httpClient *http.Client
	sparql     *sparqlClient
}

func NewExternalAPIAdapter(src domain.Source, httpClient *http.Client, sparql *sparqlClient) *ExternalAPIAdapter {
	return &ExternalAPIAdapter{
		name:       src.Key(),
		apiURL:     strings.TrimRight(src.Connection.APIURL, "/"),
		sparqlURL:  src.Connection.SparqlURL,
		httpClient: httpClient,
		sparql:     sparql,
	}
}

func (a *ExternalAPIAdapter) Name() string            { return a.name }
func (a *ExternalAPIAdapter) Kind() domain.SourceKind { return domain.KindExternalAPI }

// RewriteEntityPrefix expands the internal compact prefix in both PREFIX
// declarations and inline terms.
func RewriteEntityPrefix(query string) string {
	return strings.ReplaceAll(query, EntityPrefix, EntityNamespace)
}

type entitySearchResponse struct {
	Search []struct {
		ID          string `json:"id"`
		Label       string `json:"label"`
		Description string `json:"description"`
		ConceptURI  string `json:"concepturi"`
	} `json:"search"`
}

func (a *ExternalAPIAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	params := url.Values{}
	params.Set("action", "wbsearchentities")
	params.Set("search", query)
	params.Set("language", "en")
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, domain.ErrBackendUnavailable("external_api_unreachable", "remote knowledge service did not respond")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.ErrBackendUnavailable("external_api_status", "remote knowledge service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, domain.ErrBackendUnavailable("external_api_read_failed", "failed reading remote response")
	}

	var parsed entitySearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, domain.ErrBackendUnavailable("external_api_malformed", "remote knowledge service returned malformed results")
	}

	results := make([]domain.SearchResult, 0, len(parsed.Search))
	for i, entry := range parsed.Search {
		id := entry.ConceptURI
		if id == "" {
			id = EntityNamespace + entry.ID
		}
		results = append(results, domain.SearchResult{
			Label:       entry.Label,
			ID:          id,
			Description: entry.Description,
			Confidence:  0.95 - float64(i)*0.02,
			Source:      a.name,
		})
	}
	return results, nil
}

func (a *ExternalAPIAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	start := time.Now()
	rows, err := a.sparql.Select(ctx, a.sparqlURL, RewriteEntityPrefix(query))
	if err != nil {
		return domain.QueryResult{}, err
	}
	return domain.QueryResult{
		Results:       rows,
		Total:         len(rows),
		SourceType:    domain.KindExternalAPI,
		ExecutionTime: time.Since(start).Seconds(),
		Status:        "success",
	}, nil
}

func (a *ExternalAPIAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	iri := nodeID
	if strings.HasPrefix(nodeID, EntityPrefix) {
		iri = EntityNamespace + strings.TrimPrefix(nodeID, EntityPrefix)
	}
	sparql := fmt.Sprintf(`
SELECT ?label ?description WHERE {
  OPTIONAL { %[1]s <http://www.w3.org/2000/01/rdf-schema#label> ?label . FILTER(LANG(?label) = "en") }
  OPTIONAL { %[1]s <http://schema.org/description> ?description . FILTER(LANG(?description) = "en") }
} LIMIT 1`, sparqlIRI(iri))

	rows, err := a.sparql.Select(ctx, a.sparqlURL, sparql)
	if err != nil {
		return domain.MapNode{}, err
	}
	node := domain.MapNode{ID: iri, Label: nodeID}
	if len(rows) > 0 {
		if label := stringField(rows[0], "label"); label != "" {
			node.Label = label
		}
		node.Description = stringField(rows[0], "description")
	}
	return node, nil
}

func (a *ExternalAPIAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	iri := nodeID
	if strings.HasPrefix(nodeID, EntityPrefix) {
		iri = EntityNamespace + strings.TrimPrefix(nodeID, EntityPrefix)
	}
	sparql := fmt.Sprintf(`
SELECT ?p ?o ?olabel WHERE {
  %s ?p ?o .
  FILTER(isIRI(?o))
  OPTIONAL { ?o <http://www.w3.org/2000/01/rdf-schema#label> ?olabel . FILTER(LANG(?olabel) = "en") }
} LIMIT 100`, sparqlIRI(iri))

	rows, err := a.sparql.Select(ctx, a.sparqlURL, sparql)
	if err != nil {
		return nil, err
	}

	rels := make([]domain.Relationship, 0, len(rows))
	for _, row := range rows {
		target := stringField(row, "o")
		label := stringField(row, "olabel")
		if label == "" {
			label = target
		}
		rels = append(rels, domain.Relationship{
			RelationType: stringField(row, "p"),
			Direction:    "outgoing",
			TargetNode:   domain.MapNode{ID: target, Label: label},
		})
	}
	return rels, nil
}

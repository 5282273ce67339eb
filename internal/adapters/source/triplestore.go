package source

import (
	"context"
	"fmt"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// TripleStoreAdapter speaks SPARQL to a dedicated RDF store such as oxigraph
// or fuseki.
type TripleStoreAdapter struct {
	name     string
	endpoint string
	client   *sparqlClient
}

func NewTripleStoreAdapter(src domain.Source, client *sparqlClient) *TripleStoreAdapter {
	endpoint := src.Connection.EndpointURL
	if endpoint == "" {
		endpoint = src.Connection.SparqlURL
	}
	return &TripleStoreAdapter{
		name:     src.Key(),
		endpoint: normalizeQueryEndpoint(endpoint, "/query"),
		client:   client,
	}
}

func (a *TripleStoreAdapter) Name() string            { return a.name }
func (a *TripleStoreAdapter) Kind() domain.SourceKind { return domain.KindTripleStore }

func (a *TripleStoreAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	sparql := fmt.Sprintf(`
SELECT ?s ?label ?description WHERE {
  ?s <http://www.w3.org/2000/01/rdf-schema#label> ?label .
  OPTIONAL { ?s <http://purl.org/dc/terms/description> ?description . }
  FILTER(CONTAINS(LCASE(STR(?label)), LCASE(%s)))
} LIMIT %d`, sparqlLiteral(query), limit)

	rows, err := a.client.Select(ctx, a.endpoint, sparql)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, domain.SearchResult{
			Label:       stringField(row, "label"),
			ID:          stringField(row, "s"),
			Description: stringField(row, "description"),
			Confidence:  0.8,
			Source:      a.name,
		})
	}
	return results, nil
}

func (a *TripleStoreAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	start := time.Now()
	rows, err := a.client.Select(ctx, a.endpoint, query)
	if err != nil {
		return domain.QueryResult{}, err
	}
	return domain.QueryResult{
		Results:       rows,
		Total:         len(rows),
		SourceType:    domain.KindTripleStore,
		ExecutionTime: time.Since(start).Seconds(),
		Status:        "success",
	}, nil
}

func (a *TripleStoreAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	sparql := fmt.Sprintf(`
SELECT ?label ?description ?type WHERE {
  OPTIONAL { %[1]s <http://www.w3.org/2000/01/rdf-schema#label> ?label . }
  OPTIONAL { %[1]s <http://purl.org/dc/terms/description> ?description . }
  OPTIONAL { %[1]s <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> ?type . }
} LIMIT 1`, sparqlIRI(nodeID))

	rows, err := a.client.Select(ctx, a.endpoint, sparql)
	if err != nil {
		return domain.MapNode{}, err
	}
	node := domain.MapNode{ID: nodeID, Label: nodeID}
	if len(rows) > 0 {
		if label := stringField(rows[0], "label"); label != "" {
			node.Label = label
		}
		node.Description = stringField(rows[0], "description")
		node.NodeType = stringField(rows[0], "type")
	}
	return node, nil
}

func (a *TripleStoreAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	iri := sparqlIRI(nodeID)
	sparql := fmt.Sprintf(`
SELECT ?p ?o ?olabel WHERE {
  %s ?p ?o .
  OPTIONAL { ?o <http://www.w3.org/2000/01/rdf-schema#label> ?olabel . }
  FILTER(isIRI(?o))
} LIMIT 200`, iri)

	rows, err := a.client.Select(ctx, a.endpoint, sparql)
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

func stringField(row map[string]any, key string) string {
	if v, ok := row[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

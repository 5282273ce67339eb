package source

import (
	"context"
	"fmt"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// VirtualRDFAdapter fronts an ontop-style SPARQL endpoint that maps a
// relational database into RDF. The admin-only term gate is enforced by the
// dispatcher before this adapter is ever called.
type VirtualRDFAdapter struct {
	name     string
	endpoint string
	client   *sparqlClient
}

func NewVirtualRDFAdapter(src domain.Source, client *sparqlClient) *VirtualRDFAdapter {
	endpoint := src.Connection.SparqlURL
	if endpoint == "" {
		endpoint = src.Connection.EndpointURL
	}
	return &VirtualRDFAdapter{
		name:     src.Key(),
		endpoint: normalizeQueryEndpoint(endpoint, "/sparql"),
		client:   client,
	}
}

func (a *VirtualRDFAdapter) Name() string            { return a.name }
func (a *VirtualRDFAdapter) Kind() domain.SourceKind { return domain.KindVirtualRDF }

func (a *VirtualRDFAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	sparql := fmt.Sprintf(`
SELECT DISTINCT ?s ?label WHERE {
  ?s <http://www.w3.org/2000/01/rdf-schema#label> ?label .
  FILTER(CONTAINS(LCASE(STR(?label)), LCASE(%s)))
} LIMIT %d`, sparqlLiteral(query), limit)

	rows, err := a.client.Select(ctx, a.endpoint, sparql)
	if err != nil {
		return nil, err
	}

	results := make([]domain.SearchResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, domain.SearchResult{
			Label:      stringField(row, "label"),
			ID:         stringField(row, "s"),
			Confidence: 0.7,
			Source:     a.name,
		})
	}
	return results, nil
}

func (a *VirtualRDFAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	start := time.Now()
	rows, err := a.client.Select(ctx, a.endpoint, query)
	if err != nil {
		return domain.QueryResult{}, err
	}
	return domain.QueryResult{
		Results:       rows,
		Total:         len(rows),
		SourceType:    domain.KindVirtualRDF,
		ExecutionTime: time.Since(start).Seconds(),
		Status:        "success",
	}, nil
}

func (a *VirtualRDFAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	sparql := fmt.Sprintf(`
SELECT ?label WHERE {
  %s <http://www.w3.org/2000/01/rdf-schema#label> ?label .
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
	}
	return node, nil
}

func (a *VirtualRDFAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	sparql := fmt.Sprintf(`
SELECT ?p ?o ?olabel WHERE {
  %s ?p ?o .
  OPTIONAL { ?o <http://www.w3.org/2000/01/rdf-schema#label> ?olabel . }
  FILTER(isIRI(?o))
} LIMIT 200`, sparqlIRI(nodeID))

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

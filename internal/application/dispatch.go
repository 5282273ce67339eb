package application

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSearchLimit = 20

// Search fans out across every permitted adapter concurrently. A failing
// source contributes zero results instead of failing the whole request.
func (s *GatewayService) Search(ctx context.Context, identity *domain.Identity, query string, sourceNames []string, limit int) ([]domain.SearchResult, error) {
	if query == "" {
		return nil, domain.ErrInvalidInput("query_required", "search query is required")
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > 200 {
		limit = 200
	}

	resolved, err := s.ResolveSources(ctx, identity, sourceNames)
	if err != nil {
		return nil, err
	}

	var mu sync.Mutex
	merged := make([]domain.SearchResult, 0)

	g, gctx := errgroup.WithContext(ctx)
	for _, access := range resolved {
		access := access
		g.Go(func() error {
			adapter, err := s.registry.Get(access.Source.Key())
			if err != nil {
				// Kinds the registry skipped never participate.
				return nil
			}
			results, err := adapter.Search(gctx, query, limit)
			if err != nil {
				s.logger.Warn("source search failed",
					zap.String("source", access.Source.Key()),
					zap.String("code", domain.CodeOf(err)))
				return nil
			}
			mu.Lock()
			merged = append(merged, results...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Confidence != merged[j].Confidence {
			return merged[i].Confidence > merged[j].Confidence
		}
		return merged[i].RelevanceScore > merged[j].RelevanceScore
	})
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

// MapNodes resolves one node with its relationships from exactly one source.
func (s *GatewayService) MapNodes(ctx context.Context, identity *domain.Identity, nodeID string, sourceNames []string) (domain.MapNodeResponse, error) {
	if nodeID == "" {
		return domain.MapNodeResponse{}, domain.ErrInvalidInput("node_id_required", "node id is required")
	}
	if len(sourceNames) != 1 {
		return domain.MapNodeResponse{}, domain.ErrInvalidInput("single_source_required", "map-nodes requires exactly one source")
	}

	resolved, err := s.ResolveSources(ctx, identity, sourceNames)
	if err != nil {
		return domain.MapNodeResponse{}, err
	}

	adapter, err := s.registry.Get(resolved[0].Source.Key())
	if err != nil {
		return domain.MapNodeResponse{}, err
	}

	node, err := adapter.NodeDetails(ctx, nodeID)
	if err != nil {
		return domain.MapNodeResponse{}, err
	}
	relationships, err := adapter.Relationships(ctx, nodeID)
	if err != nil {
		return domain.MapNodeResponse{}, err
	}

	return domain.MapNodeResponse{
		PrimaryNode:   node,
		Relationships: relationships,
		BundledEdges:  bundleEdges(node, relationships),
		Metadata:      map[string]any{"source": resolved[0].Source.Key()},
	}, nil
}

// bundleEdges groups relationships by relation type; groups with more than
// one target collapse into a single bundled edge for the map view.
func bundleEdges(node domain.MapNode, relationships []domain.Relationship) []domain.BundledEdge {
	order := make([]string, 0)
	groups := make(map[string][]int)
	for i, rel := range relationships {
		if _, ok := groups[rel.RelationType]; !ok {
			order = append(order, rel.RelationType)
		}
		groups[rel.RelationType] = append(groups[rel.RelationType], i)
	}

	bundles := make([]domain.BundledEdge, 0)
	for _, relationType := range order {
		indexes := groups[relationType]
		if len(indexes) < 2 {
			continue
		}
		refs := make([]domain.BundledEdgeRef, 0, len(indexes))
		for _, i := range indexes {
			refs = append(refs, domain.BundledEdgeRef{
				RelatedItemID:    relationships[i].TargetNode.ID,
				RelatedItemLabel: relationships[i].TargetNode.Label,
				OriginalIndex:    fmt.Sprintf("%d", i),
			})
		}
		bundles = append(bundles, domain.BundledEdge{
			ID:           fmt.Sprintf("bundle-%s-%s", node.ID, relationType),
			Label:        fmt.Sprintf("%s (%d)", relationType, len(indexes)),
			Type:         "bundled",
			SourceNode:   node.ID,
			RelationType: relationType,
			Count:        len(indexes),
			BundledEdges: refs,
		})
	}
	return bundles
}

// DispatchQuery classifies the query and routes it through the source's
// safety gate before any backend work happens.
func (s *GatewayService) DispatchQuery(ctx context.Context, identity *domain.Identity, sourceID uint, query, queryType string) (domain.QueryResult, error) {
	if query == "" {
		return domain.QueryResult{}, domain.ErrInvalidInput("query_required", "query is required")
	}

	src, err := s.repo.GetSource(ctx, sourceID)
	if err != nil {
		return domain.QueryResult{}, err
	}
	if !src.Active {
		return domain.QueryResult{}, domain.ErrNotFound("source_not_found", "source %d not found", sourceID)
	}

	resolved, err := s.ResolveSources(ctx, identity, []string{src.Key()})
	if err != nil {
		return domain.QueryResult{}, err
	}
	access := resolved[0]

	adapter, err := s.registry.Get(src.Key())
	if err != nil {
		return domain.QueryResult{}, err
	}

	c := Classify(query, queryType)
	if c.Search {
		return s.searchAsQueryResult(ctx, adapter, c.Term)
	}

	switch src.Kind {
	case domain.KindInternalDB:
		if !c.SQL {
			return domain.QueryResult{}, domain.ErrInvalidInput("sql_required", "source %q accepts SQL SELECT statements only", src.Key())
		}
		return adapter.Query(ctx, query)

	case domain.KindTripleStore:
		if !c.SPARQL {
			return domain.QueryResult{}, domain.ErrInvalidInput("sparql_required", "source %q accepts SPARQL queries only", src.Key())
		}
		return adapter.Query(ctx, query)

	case domain.KindVirtualRDF:
		if !c.SPARQL {
			return domain.QueryResult{}, domain.ErrInvalidInput("sparql_required", "source %q accepts SPARQL queries only", src.Key())
		}
		if term, hit := matchAdminTerm(query, AdminTerms(src.Security)); hit && !access.CanAdmin {
			return domain.QueryResult{}, domain.ErrForbidden("admin_term", "query touches admin-restricted data (%s)", term)
		}
		return adapter.Query(ctx, query)

	case domain.KindExternalAPI:
		if c.SPARQL {
			return adapter.Query(ctx, query)
		}
		// Plain text against the external service becomes a search.
		return s.searchAsQueryResult(ctx, adapter, query)

	case domain.KindOntologyLookup:
		return domain.QueryResult{}, domain.ErrInvalidInput("query_unsupported", "source %q only supports search", src.Key())

	default:
		return domain.QueryResult{}, domain.ErrInvalidInput("unsupported_source", "source %q has an unsupported kind", src.Key())
	}
}

func (s *GatewayService) searchAsQueryResult(ctx context.Context, adapter domain.Adapter, term string) (domain.QueryResult, error) {
	results, err := adapter.Search(ctx, term, defaultSearchLimit)
	if err != nil {
		return domain.QueryResult{}, err
	}

	rows := make([]map[string]any, 0, len(results))
	for _, r := range results {
		rows = append(rows, map[string]any{
			"label":       r.Label,
			"id":          r.ID,
			"description": r.Description,
			"confidence":  r.Confidence,
		})
	}
	return domain.QueryResult{
		Results:    rows,
		Total:      len(rows),
		SourceType: adapter.Kind(),
		Status:     "success",
	}, nil
}

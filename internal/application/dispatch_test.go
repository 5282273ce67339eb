package application

import (
	"context"
	"testing"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func wireAdapter(f *fixture, src domain.Source, a *countingAdapter) {
	a.name = src.Key()
	a.kind = src.Kind
	f.registry.add(a)
}

func TestSearchMergesAndSorts(t *testing.T) {
	f := newFixture(t)
	wiki := f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	ols := f.addSource(t, domain.Source{Name: "ols", Kind: domain.KindOntologyLookup})

	wireAdapter(f, wiki, &countingAdapter{results: []domain.SearchResult{
		{Label: "maize", ID: "Q11575", Confidence: 0.95, Source: "wikidata"},
		{Label: "corn", ID: "Q1", Confidence: 0.60, Source: "wikidata"},
	}})
	wireAdapter(f, ols, &countingAdapter{results: []domain.SearchResult{
		{Label: "Zea mays", ID: "NCBITaxon:4577", Confidence: 0.80, Source: "ols"},
	}})

	results, err := f.svc.Search(context.Background(), nil, "maize", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "maize", results[0].Label)
	assert.Equal(t, "Zea mays", results[1].Label)
	assert.Equal(t, "corn", results[2].Label)
}

func TestSearchPartialFailure(t *testing.T) {
	f := newFixture(t)
	wiki := f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	ols := f.addSource(t, domain.Source{Name: "ols", Kind: domain.KindOntologyLookup})

	wireAdapter(f, wiki, &countingAdapter{err: domain.ErrBackendUnavailable("down", "unreachable")})
	wireAdapter(f, ols, &countingAdapter{results: []domain.SearchResult{{Label: "Zea mays", Confidence: 0.8}}})

	results, err := f.svc.Search(context.Background(), nil, "maize", nil, 10)
	require.NoError(t, err, "a failing source must not fail the fan-out")
	require.Len(t, results, 1)
	assert.Equal(t, "Zea mays", results[0].Label)
}

func TestSearchTruncatesToLimit(t *testing.T) {
	f := newFixture(t)
	wiki := f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	wireAdapter(f, wiki, &countingAdapter{results: []domain.SearchResult{
		{Label: "a", Confidence: 0.9},
		{Label: "b", Confidence: 0.8},
		{Label: "c", Confidence: 0.7},
	}})

	results, err := f.svc.Search(context.Background(), nil, "x", nil, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Search(context.Background(), nil, "", nil, 10)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestDispatchSQLToInternalDB(t *testing.T) {
	f := newFixture(t)
	db := f.addSource(t, domain.Source{Name: "warehouse", Kind: domain.KindInternalDB, Security: publicPolicy()})
	adapter := &countingAdapter{rows: []map[string]any{{"name": "maize"}}}
	wireAdapter(f, db, adapter)

	result, err := f.svc.DispatchQuery(context.Background(), nil, db.ID, "SELECT name FROM crops", "")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "success", result.Status)
	assert.Equal(t, 1, adapter.queryCalls)

	_, err = f.svc.DispatchQuery(context.Background(), nil, db.ID, "SELECT * FROM users; DROP TABLE users;", "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
	assert.Equal(t, 1, adapter.queryCalls, "rejected statement must not reach the adapter")
}

func TestDispatchSPARQLToTripleStore(t *testing.T) {
	f := newFixture(t)
	ts := f.addSource(t, domain.Source{Name: "triples", Kind: domain.KindTripleStore, Security: publicPolicy()})
	adapter := &countingAdapter{rows: []map[string]any{{"s": "x"}}}
	wireAdapter(f, ts, adapter)

	_, err := f.svc.DispatchQuery(context.Background(), nil, ts.ID, "ASK { ?s ?p ?o }", "")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.queryCalls)

	_, err = f.svc.DispatchQuery(context.Background(), nil, ts.ID, "not a query", "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestDispatchAdminGateBlocksBeforeOutboundCall(t *testing.T) {
	f := newFixture(t)
	ontop := f.addSource(t, domain.Source{
		Name:     "ontop",
		Kind:     domain.KindVirtualRDF,
		Security: domain.SecurityPolicy{QueryDomains: []string{"public"}, AdminOnlyTablePatterns: []string{"hr_%"}, AdminOnlyQueryTerms: []string{"salaries"}},
	})
	adapter := &countingAdapter{rows: []map[string]any{{"s": "x"}}}
	wireAdapter(f, ontop, adapter)

	_, err := f.svc.DispatchQuery(context.Background(), nil, ontop.ID, "SELECT ?x WHERE { ?x :table :Salaries }", "")
	assert.Equal(t, domain.KindForbidden, domain.KindOf(err))
	assert.Equal(t, 0, adapter.queryCalls, "gated query must never leave the gateway")

	// Harmless query passes.
	_, err = f.svc.DispatchQuery(context.Background(), nil, ontop.ID, "SELECT ?x WHERE { ?x :label 'maize' }", "")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.queryCalls)

	// Admins pass the gate.
	root := f.addUser(t, "root", true)
	_, err = f.svc.DispatchQuery(context.Background(), &root, ontop.ID, "SELECT ?x WHERE { ?x :table :Salaries }", "")
	require.NoError(t, err)
	assert.Equal(t, 2, adapter.queryCalls)
}

func TestDispatchSearchIntent(t *testing.T) {
	f := newFixture(t)
	wiki := f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	adapter := &countingAdapter{results: []domain.SearchResult{{Label: "maize", ID: "Q11575", Confidence: 0.9}}}
	wireAdapter(f, wiki, adapter)

	result, err := f.svc.DispatchQuery(context.Background(), nil, wiki.ID, "maize", "SEARCH")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, "maize", result.Results[0]["label"])
	assert.Equal(t, 1, adapter.searchCalls)
	assert.Equal(t, 0, adapter.queryCalls)
}

func TestDispatchExternalFallsBackToSearch(t *testing.T) {
	f := newFixture(t)
	wiki := f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	adapter := &countingAdapter{results: []domain.SearchResult{{Label: "maize"}}}
	wireAdapter(f, wiki, adapter)

	_, err := f.svc.DispatchQuery(context.Background(), nil, wiki.ID, "plain words about maize", "")
	require.NoError(t, err)
	assert.Equal(t, 1, adapter.searchCalls)
	assert.Equal(t, 0, adapter.queryCalls)
}

func TestDispatchOntologyLookupRejectsQueries(t *testing.T) {
	f := newFixture(t)
	ols := f.addSource(t, domain.Source{Name: "ols", Kind: domain.KindOntologyLookup})
	wireAdapter(f, ols, &countingAdapter{})

	_, err := f.svc.DispatchQuery(context.Background(), nil, ols.ID, "SELECT ?s WHERE { ?s ?p ?o }", "")
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestDispatchDeniesInaccessibleSource(t *testing.T) {
	f := newFixture(t)
	private := f.addSource(t, domain.Source{Name: "private_db", Kind: domain.KindInternalDB})
	adapter := &countingAdapter{}
	wireAdapter(f, private, adapter)

	_, err := f.svc.DispatchQuery(context.Background(), nil, private.ID, "SELECT 1", "")
	assert.Equal(t, domain.KindUnauthenticated, domain.KindOf(err))
	assert.Equal(t, 0, adapter.queryCalls)
}

func TestMapNodesRequiresSingleSource(t *testing.T) {
	f := newFixture(t)
	f.addSource(t, domain.Source{Name: "wikidata", Kind: domain.KindExternalAPI})
	f.addSource(t, domain.Source{Name: "ols", Kind: domain.KindOntologyLookup})

	_, err := f.svc.MapNodes(context.Background(), nil, "Q1", []string{"wikidata", "ols"})
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))

	_, err = f.svc.MapNodes(context.Background(), nil, "Q1", nil)
	assert.Equal(t, domain.KindInvalidInput, domain.KindOf(err))
}

func TestBundleEdges(t *testing.T) {
	node := domain.MapNode{ID: "Q1", Label: "maize"}
	rels := []domain.Relationship{
		{RelationType: "grows_in", TargetNode: domain.MapNode{ID: "Q2", Label: "andes"}},
		{RelationType: "grows_in", TargetNode: domain.MapNode{ID: "Q3", Label: "mexico"}},
		{RelationType: "subclass_of", TargetNode: domain.MapNode{ID: "Q4", Label: "cereal"}},
	}

	bundles := bundleEdges(node, rels)
	require.Len(t, bundles, 1, "single-target groups stay unbundled")
	assert.Equal(t, "grows_in", bundles[0].RelationType)
	assert.Equal(t, 2, bundles[0].Count)
	assert.Equal(t, "Q1", bundles[0].SourceNode)
	require.Len(t, bundles[0].BundledEdges, 2)
	assert.Equal(t, "Q2", bundles[0].BundledEdges[0].RelatedItemID)
	assert.Equal(t, "0", bundles[0].BundledEdges[0].OriginalIndex)
}

func TestSearchUsesNopLoggerSafely(t *testing.T) {
	// Guard against nil-logger regressions in the fan-out path.
	repo := newFakeRepo()
	registry := newFakeRegistry()
	svc := NewGatewayService(repo, registry, nil, zap.NewNop())

	_, err := svc.Search(context.Background(), nil, "anything", nil, 5)
	require.NoError(t, err)
}

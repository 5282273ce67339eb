package source

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry owns the live adapter instances, keyed by normalized source name.
// Construction is cheap and side-effect-free, so adapters are built eagerly
// when a source snapshot arrives.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]domain.Adapter

	logger     *zap.Logger
	db         *gorm.DB
	httpClient *http.Client
	sparql     *sparqlClient
}

func NewRegistry(logger *zap.Logger, db *gorm.DB) *Registry {
	httpClient := &http.Client{Timeout: 30 * time.Second}
	return &Registry{
		adapters:   make(map[string]domain.Adapter),
		logger:     logger,
		db:         db,
		httpClient: httpClient,
		sparql:     &sparqlClient{httpClient: httpClient},
	}
}

func (r *Registry) build(src domain.Source) (domain.Adapter, bool) {
	switch src.Kind {
	case domain.KindInternalDB:
		return NewRelationalAdapter(src, r.db), true
	case domain.KindTripleStore:
		return NewTripleStoreAdapter(src, r.sparql), true
	case domain.KindVirtualRDF:
		return NewVirtualRDFAdapter(src, r.sparql), true
	case domain.KindExternalAPI:
		return NewExternalAPIAdapter(src, r.httpClient, r.sparql), true
	case domain.KindOntologyLookup:
		return NewOntologyLookupAdapter(src, r.httpClient), true
	default:
		return nil, false
	}
}

func (r *Registry) Ensure(src domain.Source) {
	key := src.Key()

	r.mu.RLock()
	_, exists := r.adapters[key]
	r.mu.RUnlock()
	if exists {
		return
	}

	adapter, ok := r.build(src)
	if !ok {
		r.logger.Warn("skipping source with unsupported kind",
			zap.String("source", key))
		return
	}

	r.mu.Lock()
	if _, exists := r.adapters[key]; !exists {
		r.adapters[key] = adapter
	}
	r.mu.Unlock()
}

// Replace rebuilds the adapter from a fresh snapshot. No partial mutation:
// the old instance is swapped out wholesale.
func (r *Registry) Replace(src domain.Source) {
	key := src.Key()

	adapter, ok := r.build(src)
	if !ok {
		r.mu.Lock()
		delete(r.adapters, key)
		r.mu.Unlock()
		r.logger.Warn("removed source after kind became unsupported",
			zap.String("source", key))
		return
	}

	r.mu.Lock()
	r.adapters[key] = adapter
	r.mu.Unlock()
}

func (r *Registry) Get(name string) (domain.Adapter, error) {
	key := domain.NormalizeSourceName(name)

	r.mu.RLock()
	adapter, ok := r.adapters[key]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound("source_not_registered", "no adapter registered for %q", key)
	}
	return adapter, nil
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

func (r *Registry) Reset() {
	r.mu.Lock()
	r.adapters = make(map[string]domain.Adapter)
	r.mu.Unlock()
}

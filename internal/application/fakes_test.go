package application

import (
	"context"
	"sync"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// fakeRepo is an in-memory record store for service tests.
type fakeRepo struct {
	mu         sync.Mutex
	sources    map[uint]domain.Source
	grants     []domain.PermissionGrant
	writeBacks map[uint]domain.WriteBackRequest
	users      map[uint]domain.User
	tokens     map[string]domain.APIToken
	audits     []domain.AuditLog
	nextID     uint
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sources:    make(map[uint]domain.Source),
		writeBacks: make(map[uint]domain.WriteBackRequest),
		users:      make(map[uint]domain.User),
		tokens:     make(map[string]domain.APIToken),
	}
}

func (f *fakeRepo) id() uint {
	f.nextID++
	return f.nextID
}

func (f *fakeRepo) ListActive(ctx context.Context) ([]domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Source, 0, len(f.sources))
	for _, s := range f.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetSource(ctx context.Context, id uint) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return domain.Source{}, domain.ErrNotFound("source_not_found", "source %d not found", id)
	}
	return s, nil
}

func (f *fakeRepo) CreateSource(ctx context.Context, value domain.Source) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sources {
		if s.Key() == value.Key() {
			return domain.Source{}, domain.ErrConflict("source_exists", "source %q already exists", value.Key())
		}
	}
	value.ID = f.id()
	value.Name = value.Key()
	value.CreatedAt = time.Now()
	f.sources[value.ID] = value
	return value, nil
}

func (f *fakeRepo) UpdateSource(ctx context.Context, id uint, update domain.SourceUpdate) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	if !ok {
		return domain.Source{}, domain.ErrNotFound("source_not_found", "source %d not found", id)
	}
	if update.Connection != nil {
		s.Connection = *update.Connection
	}
	if update.Security != nil {
		s.Security = *update.Security
	}
	if update.UI != nil {
		s.UI = *update.UI
	}
	if update.Description != nil {
		s.Description = *update.Description
	}
	if update.AllowWriteBack != nil {
		s.AllowWriteBack = *update.AllowWriteBack
	}
	if update.Active != nil {
		s.Active = *update.Active
	}
	f.sources[id] = s
	return s, nil
}

func (f *fakeRepo) GrantsForUser(ctx context.Context, userID uint) ([]domain.PermissionGrant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.PermissionGrant, 0)
	for _, g := range f.grants {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeRepo) Grant(ctx context.Context, grant domain.PermissionGrant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.grants {
		if g.SourceID == grant.SourceID && g.UserID == grant.UserID && g.Permission == grant.Permission {
			return nil
		}
	}
	grant.ID = f.id()
	f.grants = append(f.grants, grant)
	return nil
}

func (f *fakeRepo) CreateWriteBack(ctx context.Context, value domain.WriteBackRequest) (domain.WriteBackRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value.ID = f.id()
	value.Status = domain.WriteBackPending
	value.CreatedAt = time.Now()
	f.writeBacks[value.ID] = value
	return value, nil
}

func (f *fakeRepo) GetWriteBack(ctx context.Context, id uint) (domain.WriteBackRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.writeBacks[id]
	if !ok {
		return domain.WriteBackRequest{}, domain.ErrNotFound("write_back_not_found", "write-back request %d not found", id)
	}
	return r, nil
}

func (f *fakeRepo) ListWriteBacks(ctx context.Context, filter domain.WriteBackFilter, limit int) ([]domain.WriteBackRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.WriteBackRequest, 0)
	for _, r := range f.writeBacks {
		if filter.RequesterID != nil && r.RequestedByID != *filter.RequesterID {
			continue
		}
		if len(filter.SourceIDs) > 0 {
			found := false
			for _, id := range filter.SourceIDs {
				if id == r.SourceID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeRepo) UpdateWriteBackStatus(ctx context.Context, value domain.WriteBackRequest) (domain.WriteBackRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.writeBacks[value.ID]
	if !ok {
		return domain.WriteBackRequest{}, domain.ErrNotFound("write_back_not_found", "write-back request %d not found", value.ID)
	}
	r.Status = value.Status
	r.ApprovedByID = value.ApprovedByID
	r.ApprovedAt = value.ApprovedAt
	r.RejectionReason = value.RejectionReason
	f.writeBacks[value.ID] = r
	return r, nil
}

func (f *fakeRepo) CreateUser(ctx context.Context, value domain.User) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == value.Username {
			return domain.User{}, domain.ErrConflict("user_exists", "username %q already taken", value.Username)
		}
	}
	value.ID = f.id()
	f.users[value.ID] = value
	return value, nil
}

func (f *fakeRepo) CountUsers(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.users)), nil
}

func (f *fakeRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrNotFound("user_not_found", "user %q not found", username)
}

func (f *fakeRepo) GetUserByID(ctx context.Context, id uint) (domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound("user_not_found", "user %d not found", id)
	}
	return u, nil
}

func (f *fakeRepo) CreateAPIToken(ctx context.Context, value domain.APIToken) (domain.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value.ID = f.id()
	f.tokens[value.TokenHash] = value
	return value, nil
}

func (f *fakeRepo) GetAPITokenByHash(ctx context.Context, tokenHash string) (domain.APIToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[tokenHash]
	if !ok {
		return domain.APIToken{}, domain.ErrUnauthenticated("invalid_token", "token not recognized")
	}
	return t, nil
}

func (f *fakeRepo) CreateAuditLog(ctx context.Context, value domain.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audits = append(f.audits, value)
	return nil
}

func (f *fakeRepo) ListAuditLogs(ctx context.Context, limit int) ([]domain.AuditRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.AuditRecord, 0, len(f.audits))
	for _, a := range f.audits {
		out = append(out, domain.AuditRecord{ID: a.ID, ActorUserID: a.ActorUserID, Action: a.Action, TargetType: a.TargetType, TargetID: a.TargetID, Metadata: a.Metadata})
	}
	return out, nil
}

// countingAdapter records every backend call so tests can assert the gates
// fire before any outbound work.
type countingAdapter struct {
	name    string
	kind    domain.SourceKind
	results []domain.SearchResult
	rows    []map[string]any
	err     error

	mu          sync.Mutex
	searchCalls int
	queryCalls  int
}

func (a *countingAdapter) Name() string            { return a.name }
func (a *countingAdapter) Kind() domain.SourceKind { return a.kind }

func (a *countingAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	a.mu.Lock()
	a.searchCalls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.results, nil
}

func (a *countingAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	a.mu.Lock()
	a.queryCalls++
	a.mu.Unlock()
	if a.err != nil {
		return domain.QueryResult{}, a.err
	}
	return domain.QueryResult{Results: a.rows, Total: len(a.rows), SourceType: a.kind, Status: "success"}, nil
}

func (a *countingAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	return domain.MapNode{ID: nodeID, Label: nodeID}, nil
}

func (a *countingAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	return nil, nil
}

// fakeRegistry serves pre-wired adapters keyed by normalized name.
type fakeRegistry struct {
	mu       sync.Mutex
	adapters map[string]domain.Adapter
	replaced []string
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{adapters: make(map[string]domain.Adapter)}
}

func (r *fakeRegistry) add(a domain.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

func (r *fakeRegistry) Ensure(src domain.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[src.Key()]; !ok && src.Kind != domain.KindUnsupported {
		r.adapters[src.Key()] = &countingAdapter{name: src.Key(), kind: src.Kind}
	}
}

func (r *fakeRegistry) Replace(src domain.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.replaced = append(r.replaced, src.Key())
	r.adapters[src.Key()] = &countingAdapter{name: src.Key(), kind: src.Kind}
}

func (r *fakeRegistry) Get(name string) (domain.Adapter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.adapters[domain.NormalizeSourceName(name)]
	if !ok {
		return nil, domain.ErrNotFound("source_not_registered", "no adapter registered for %q", name)
	}
	return a, nil
}

func (r *fakeRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.adapters))
	for n := range r.adapters {
		names = append(names, n)
	}
	return names
}

func (r *fakeRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters = make(map[string]domain.Adapter)
}

type fakeRuntime struct {
	applied []string
	outcome domain.RuntimeOutcome
}

func (f *fakeRuntime) Apply(ctx context.Context, src domain.Source) (domain.RuntimeOutcome, error) {
	f.applied = append(f.applied, src.Key())
	return f.outcome, nil
}

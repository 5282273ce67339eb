package domain

import "context"

// SourceStore is the record-store contract for source configurations.
type SourceStore interface {
	ListActive(ctx context.Context) ([]Source, error)
	GetSource(ctx context.Context, id uint) (Source, error)
	CreateSource(ctx context.Context, value Source) (Source, error)
	UpdateSource(ctx context.Context, id uint, update SourceUpdate) (Source, error)
}

// SourceUpdate is a partial update of the mutable source fields. Nil fields
// are left untouched.
type SourceUpdate struct {
	Connection     *ConnectionConfig
	Security       *SecurityPolicy
	UI             *UIDescriptor
	Description    *string
	AllowWriteBack *bool
	Active         *bool
}

// PermissionStore answers grant questions for the authorization resolver.
type PermissionStore interface {
	GrantsForUser(ctx context.Context, userID uint) ([]PermissionGrant, error)
	Grant(ctx context.Context, grant PermissionGrant) error
}

// WriteBackFilter narrows a write-back listing. A zero filter means all.
type WriteBackFilter struct {
	RequesterID *uint
	SourceIDs   []uint
}

type WriteBackStore interface {
	CreateWriteBack(ctx context.Context, value WriteBackRequest) (WriteBackRequest, error)
	GetWriteBack(ctx context.Context, id uint) (WriteBackRequest, error)
	ListWriteBacks(ctx context.Context, filter WriteBackFilter, limit int) ([]WriteBackRequest, error)
	UpdateWriteBackStatus(ctx context.Context, value WriteBackRequest) (WriteBackRequest, error)
}

// IdentityStore backs the local identity provider.
type IdentityStore interface {
	CreateUser(ctx context.Context, value User) (User, error)
	CountUsers(ctx context.Context) (int64, error)
	GetUserByUsername(ctx context.Context, username string) (User, error)
	GetUserByID(ctx context.Context, id uint) (User, error)
	CreateAPIToken(ctx context.Context, value APIToken) (APIToken, error)
	GetAPITokenByHash(ctx context.Context, tokenHash string) (APIToken, error)
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, value AuditLog) error
	ListAuditLogs(ctx context.Context, limit int) ([]AuditRecord, error)
}

// IdentityValidator resolves a bearer token to a caller identity.
type IdentityValidator interface {
	Validate(ctx context.Context, token string) (Identity, error)
}

// Repository is the full record-store surface the service depends on.
type Repository interface {
	SourceStore
	PermissionStore
	WriteBackStore
	IdentityStore
	AuditStore
}

// RuntimeOutcome reports what happened to a virtual-rdf runtime after a
// source create or update.
type RuntimeOutcome struct {
	Applied         bool   `json:"runtime_applied"`
	PropertiesPath  string `json:"runtime_properties_path,omitempty"`
	Restarted       bool   `json:"restarted"`
	RestartRequired bool   `json:"restart_required"`
}

// RuntimeApplier materializes virtual-rdf connection settings into the
// endpoint's runtime configuration.
type RuntimeApplier interface {
	Apply(ctx context.Context, src Source) (RuntimeOutcome, error)
}

// Adapter normalizes one backend behind the fixed capability set.
// Construction must be side-effect-free beyond parameter binding.
type Adapter interface {
	Name() string
	Kind() SourceKind
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Query(ctx context.Context, query string) (QueryResult, error)
	NodeDetails(ctx context.Context, nodeID string) (MapNode, error)
	Relationships(ctx context.Context, nodeID string) ([]Relationship, error)
}

// AdapterRegistry owns live adapter instances keyed by normalized source name.
type AdapterRegistry interface {
	// Ensure materializes an adapter for the source if its kind is known and
	// none is cached yet. Unknown kinds are skipped without error.
	Ensure(source Source)
	// Replace rebuilds the adapter wholesale from a fresh source snapshot.
	Replace(source Source)
	Get(name string) (Adapter, error)
	Names() []string
	Reset()
}

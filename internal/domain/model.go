package domain

import (
	"strings"
	"time"
)

// SourceKind is the finite set of backend kinds the gateway can adapt.
// Unknown kinds are represented explicitly instead of being dropped on the
// floor by a map miss.
type SourceKind string

const (
	KindInternalDB     SourceKind = "internal_db"
	KindTripleStore    SourceKind = "triple_store"
	KindVirtualRDF     SourceKind = "virtual_rdf"
	KindExternalAPI    SourceKind = "external_api"
	KindOntologyLookup SourceKind = "ontology_lookup"
	KindUnsupported    SourceKind = "unsupported"
)

// KindFromString normalizes a stored source type, including legacy aliases.
func KindFromString(raw string) SourceKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "internal_db", "relational":
		return KindInternalDB
	case "triple_store", "oxigraph", "fuseki":
		return KindTripleStore
	case "virtual_rdf", "ontop":
		return KindVirtualRDF
	case "external_api":
		return KindExternalAPI
	case "ontology_lookup", "ols":
		return KindOntologyLookup
	default:
		return KindUnsupported
	}
}

// NormalizeSourceName produces the stable registry key for a source name.
func NormalizeSourceName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}

// WellKnownPublicSource is the general-knowledge base that is public by
// default regardless of its stored policy.
const WellKnownPublicSource = "wikidata"

type ConnectionConfig struct {
	EndpointURL      string `json:"endpoint_url,omitempty"`
	APIURL           string `json:"api_url,omitempty"`
	SparqlURL        string `json:"sparql_url,omitempty"`
	RDBMSConnString  string `json:"rdbms_connection_string,omitempty"`
	Driver           string `json:"db_driver,omitempty"`
	DBUser           string `json:"db_user,omitempty"`
	DBPassword       string `json:"db_password,omitempty"`
	SearchTable      string `json:"search_table,omitempty"`
	SearchIDColumn   string `json:"search_id_column,omitempty"`
	SearchTextColumn string `json:"search_text_column,omitempty"`
}

type SecurityPolicy struct {
	IsPublic               *bool    `json:"is_public,omitempty"`
	QueryDomains           []string `json:"query_domains,omitempty"`
	ManageDomains          []string `json:"manage_domains,omitempty"`
	AdminOnlyTablePatterns []string `json:"admin_only_table_patterns,omitempty"`
	AdminOnlyQueryTerms    []string `json:"admin_only_sparql_terms,omitempty"`
}

type UIDescriptor struct {
	DisplayName string `json:"display_name,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}

// Source is a normalized snapshot of one configured backend.
type Source struct {
	ID             uint
	Name           string
	Kind           SourceKind
	Description    string
	Active         bool
	Connection     ConnectionConfig
	Security       SecurityPolicy
	UI             UIDescriptor
	AllowWriteBack bool
	CreatedByID    *uint
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Key returns the case/space-normalized registry key for this source.
func (s Source) Key() string {
	return NormalizeSourceName(s.Name)
}

// IsPublic implements the public-classification rule shared by the
// authorization resolver and the capability negotiator.
func (s Source) IsPublic() bool {
	if s.Security.IsPublic != nil && *s.Security.IsPublic {
		return true
	}
	for _, d := range s.Security.QueryDomains {
		switch strings.ToLower(strings.TrimSpace(d)) {
		case "*", "public":
			return true
		}
	}
	if s.Kind == KindOntologyLookup {
		// Ontology lookup services are public unless explicitly disabled.
		return s.Security.IsPublic == nil || *s.Security.IsPublic
	}
	return s.Key() == WellKnownPublicSource
}

// Permission kinds a grant may carry.
const (
	PermView      = "view"
	PermQuery     = "query"
	PermWriteBack = "write_back"
	PermAdmin     = "admin"
	PermManage    = "manage"
)

type PermissionGrant struct {
	ID               uint
	SourceID         uint
	UserID           uint
	Permission       string
	RowFilter        string
	ColumnFilter     string
	RequiresApproval bool
	CreatedAt        time.Time
}

// Write-back request lifecycle.
const (
	WriteBackPending  = "pending"
	WriteBackApproved = "approved"
	WriteBackRejected = "rejected"
)

// Write-back operations.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type WriteBackRequest struct {
	ID              uint           `json:"id"`
	SourceID        uint           `json:"source_id"`
	SourceName      string         `json:"source"`
	RequestedByID   uint           `json:"requested_by_id"`
	RequestedBy     string         `json:"requested_by"`
	Operation       string         `json:"operation"`
	TableName       string         `json:"table_name"`
	PrimaryKey      string         `json:"primary_key,omitempty"`
	OldValues       map[string]any `json:"old_values,omitempty"`
	NewValues       map[string]any `json:"new_values,omitempty"`
	Status          string         `json:"status"`
	ApprovedByID    *uint          `json:"approved_by_id,omitempty"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	ExecutedAt      *time.Time     `json:"executed_at,omitempty"`
	ExecutionResult string         `json:"execution_result,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type User struct {
	ID           uint      `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Superuser    bool      `json:"superuser"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type APIToken struct {
	ID        uint
	UserID    uint
	Name      string
	TokenHash string
	ExpiresAt *time.Time
	CreatedAt time.Time
}

// Identity is a validated caller. A nil *Identity means anonymous.
type Identity struct {
	UserID    uint
	Username  string
	Superuser bool
}

type AuditLog struct {
	ID          uint
	ActorUserID *uint
	Action      string
	TargetType  string
	TargetID    *uint
	Metadata    string
	CreatedAt   time.Time
}

type AuditRecord struct {
	ID            uint      `json:"id"`
	ActorUserID   *uint     `json:"actor_user_id,omitempty"`
	ActorUsername string    `json:"actor_username,omitempty"`
	Action        string    `json:"action"`
	TargetType    string    `json:"target_type"`
	TargetID      *uint     `json:"target_id,omitempty"`
	Metadata      string    `json:"metadata,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchResult is the ranked, four-field-plus-confidence shape every adapter
// search normalizes into.
type SearchResult struct {
	Label          string  `json:"label"`
	ID             string  `json:"id"`
	Description    string  `json:"description,omitempty"`
	Author         string  `json:"author,omitempty"`
	Confidence     float64 `json:"confidence"`
	RelevanceScore float64 `json:"relevance_score,omitempty"`
	Source         string  `json:"source,omitempty"`
}

type MapNode struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	NodeType    string `json:"node_type,omitempty"`
}

type Relationship struct {
	RelationType string  `json:"relation_type"`
	Direction    string  `json:"direction,omitempty"`
	TargetNode   MapNode `json:"target_node"`
}

type BundledEdge struct {
	ID           string           `json:"id"`
	Label        string           `json:"label"`
	Type         string           `json:"type"`
	SourceNode   string           `json:"sourceNode"`
	RelationType string           `json:"relationType"`
	Count        int              `json:"count"`
	BundledEdges []BundledEdgeRef `json:"bundledEdges"`
}

type BundledEdgeRef struct {
	RelatedItemID    string `json:"relatedItemId"`
	RelatedItemLabel string `json:"relatedItemLabel"`
	OriginalIndex    string `json:"originalIndex"`
}

type MapNodeResponse struct {
	PrimaryNode   MapNode        `json:"primary_node"`
	Relationships []Relationship `json:"relationships"`
	BundledEdges  []BundledEdge  `json:"bundled_edges"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// QueryResult is the uniform structured-query response envelope.
type QueryResult struct {
	Results       []map[string]any `json:"results"`
	Total         int              `json:"total"`
	SourceType    SourceKind       `json:"source_type"`
	ExecutionTime float64          `json:"execution_time,omitempty"`
	Status        string           `json:"status"`
}

// CapabilitySnapshot is derived per request, never cached.
type CapabilitySnapshot struct {
	ContractVersion string          `json:"contract_version"`
	Authenticated   bool            `json:"authenticated"`
	Mode            string          `json:"mode"`
	User            *UserSummary    `json:"user"`
	Features        map[string]bool `json:"features"`
	Sources         SourceNameSets  `json:"sources"`
}

type UserSummary struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
}

type SourceNameSets struct {
	Public     []string `json:"public"`
	Private    []string `json:"private"`
	Accessible []string `json:"accessible"`
}

// SourceAccess pairs a source snapshot with the caller's effective rights on
// it, as computed by the authorization resolver.
type SourceAccess struct {
	Source       Source
	HasGrant     bool
	CanQuery     bool
	CanWriteBack bool
	CanManage    bool
	CanAdmin     bool
}

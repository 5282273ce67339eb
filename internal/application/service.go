package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// ContractVersion identifies the capability contract clients negotiate
// against. Bumped only when the capability shape changes.
const ContractVersion = "2026-02-16"

type GatewayService struct {
	repo     domain.Repository
	registry domain.AdapterRegistry
	runtime  domain.RuntimeApplier
	logger   *zap.Logger
}

func NewGatewayService(repo domain.Repository, registry domain.AdapterRegistry, runtime domain.RuntimeApplier, logger *zap.Logger) *GatewayService {
	return &GatewayService{repo: repo, registry: registry, runtime: runtime, logger: logger}
}

// ---- identity ----

func (s *GatewayService) BootstrapAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || strings.TrimSpace(password) == "" {
		return domain.ErrInvalidInput("bootstrap_required", "bootstrap admin username and password are required")
	}

	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := hashPassword(password)
	if err != nil {
		return err
	}

	u, err := s.repo.CreateUser(ctx, domain.User{
		Username:     strings.ToLower(strings.TrimSpace(username)),
		PasswordHash: hash,
		Superuser:    true,
	})
	if err != nil {
		return err
	}

	return s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.bootstrap_admin", TargetType: "user", TargetID: &u.ID, Metadata: "initial admin created"})
}

func (s *GatewayService) Login(ctx context.Context, username, password, tokenName string, ttl *time.Duration) (domain.User, string, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return domain.User{}, "", domain.ErrUnauthenticated("invalid_credentials", "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return domain.User{}, "", domain.ErrUnauthenticated("invalid_credentials", "invalid credentials")
	}

	plain, hash, err := newTokenPair()
	if err != nil {
		return domain.User{}, "", err
	}

	var expiresAt *time.Time
	if ttl != nil {
		t := time.Now().UTC().Add(*ttl)
		expiresAt = &t
	}

	if _, err := s.repo.CreateAPIToken(ctx, domain.APIToken{
		UserID:    u.ID,
		Name:      defaultString(tokenName, "cli"),
		TokenHash: hash,
		ExpiresAt: expiresAt,
	}); err != nil {
		return domain.User{}, "", err
	}

	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &u.ID, Action: "auth.login", TargetType: "user", TargetID: &u.ID, Metadata: "api token issued"})
	return u, plain, nil
}

// Validate implements domain.IdentityValidator.
func (s *GatewayService) Validate(ctx context.Context, token string) (domain.Identity, error) {
	apit, err := s.repo.GetAPITokenByHash(ctx, hashToken(token))
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthenticated("invalid_token", "token not recognized")
	}

	u, err := s.repo.GetUserByID(ctx, apit.UserID)
	if err != nil {
		return domain.Identity{}, domain.ErrUnauthenticated("invalid_token", "token not recognized")
	}

	return domain.Identity{UserID: u.ID, Username: u.Username, Superuser: u.Superuser}, nil
}

// ---- authorization resolution ----

// accessProfile computes per-source effective rights for the caller across
// all active sources. identity == nil means anonymous.
func (s *GatewayService) accessProfile(ctx context.Context, identity *domain.Identity) ([]domain.SourceAccess, error) {
	sources, err := s.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	grantsBySource := make(map[uint]map[string]bool)
	if identity != nil {
		grants, err := s.repo.GrantsForUser(ctx, identity.UserID)
		if err != nil {
			return nil, err
		}
		for _, g := range grants {
			if grantsBySource[g.SourceID] == nil {
				grantsBySource[g.SourceID] = make(map[string]bool)
			}
			grantsBySource[g.SourceID][g.Permission] = true
		}
	}

	profile := make([]domain.SourceAccess, 0, len(sources))
	for _, src := range sources {
		perms := grantsBySource[src.ID]
		super := identity != nil && identity.Superuser
		access := domain.SourceAccess{
			Source:       src,
			HasGrant:     len(perms) > 0,
			CanQuery:     src.IsPublic() || super || perms[domain.PermQuery] || perms[domain.PermView],
			CanWriteBack: super || perms[domain.PermWriteBack] || perms[domain.PermAdmin],
			CanManage:    super || perms[domain.PermManage],
			CanAdmin:     super || perms[domain.PermAdmin],
		}
		profile = append(profile, access)
	}
	return profile, nil
}

func accessible(a domain.SourceAccess, identity *domain.Identity) bool {
	if a.Source.IsPublic() {
		return true
	}
	if identity == nil {
		return false
	}
	return identity.Superuser || a.HasGrant
}

// ResolveSources validates the requested names against the caller's
// accessible set. Empty request means every accessible source. All offending
// names are reported together so the caller can fix the batch in one pass.
func (s *GatewayService) ResolveSources(ctx context.Context, identity *domain.Identity, requested []string) ([]domain.SourceAccess, error) {
	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]domain.SourceAccess, len(profile))
	for _, a := range profile {
		byKey[a.Source.Key()] = a
	}

	if len(requested) == 0 {
		resolved := make([]domain.SourceAccess, 0, len(profile))
		for _, a := range profile {
			if accessible(a, identity) {
				resolved = append(resolved, a)
			}
		}
		return resolved, nil
	}

	resolved := make([]domain.SourceAccess, 0, len(requested))
	offending := make([]string, 0)
	wouldExist := false
	for _, name := range requested {
		key := domain.NormalizeSourceName(name)
		a, ok := byKey[key]
		if !ok || !accessible(a, identity) {
			offending = append(offending, key)
			wouldExist = wouldExist || ok
			continue
		}
		resolved = append(resolved, a)
	}

	if len(offending) > 0 {
		names := strings.Join(offending, ", ")
		// Anonymous callers are told to authenticate only when that could
		// actually help; unknown names are a plain denial either way.
		if identity == nil && wouldExist {
			return nil, domain.ErrUnauthenticated("authentication_required", "authentication required for sources: %s", names)
		}
		return nil, domain.ErrForbidden("access_denied", "access denied for sources: %s", names)
	}
	return resolved, nil
}

// ---- capabilities ----

func (s *GatewayService) Capabilities(ctx context.Context, identity *domain.Identity) (domain.CapabilitySnapshot, error) {
	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return domain.CapabilitySnapshot{}, err
	}

	sets := domain.SourceNameSets{
		Public:     make([]string, 0),
		Private:    make([]string, 0),
		Accessible: make([]string, 0),
	}
	canWriteBack := false
	canManage := false
	for _, a := range profile {
		key := a.Source.Key()
		if a.Source.IsPublic() {
			sets.Public = append(sets.Public, key)
		} else {
			sets.Private = append(sets.Private, key)
		}
		if accessible(a, identity) {
			sets.Accessible = append(sets.Accessible, key)
		}
		if a.CanManage {
			canManage = true
		}
		if a.Source.AllowWriteBack && (a.CanAdmin || a.CanManage) {
			canWriteBack = true
		}
	}
	sort.Strings(sets.Public)
	sort.Strings(sets.Private)
	sort.Strings(sets.Accessible)

	snapshot := domain.CapabilitySnapshot{
		ContractVersion: ContractVersion,
		Authenticated:   identity != nil,
		Mode:            "demo",
		Sources:         sets,
	}

	if identity == nil {
		// Anonymous callers see only the public world.
		snapshot.Sources.Private = []string{}
		snapshot.Features = map[string]bool{
			"can_view_public":    true,
			"can_view_private":   false,
			"can_save_graphs":    false,
			"can_share_graphs":   false,
			"can_write_back":     false,
			"can_manage_sources": false,
		}
		return snapshot, nil
	}

	snapshot.Mode = "integrated"
	snapshot.User = &domain.UserSummary{UserID: identity.UserID, Username: identity.Username}
	snapshot.Features = map[string]bool{
		"can_view_public":    true,
		"can_view_private":   len(sets.Accessible) > len(sets.Public) || identity.Superuser,
		"can_save_graphs":    true,
		"can_share_graphs":   true,
		"can_write_back":     canWriteBack || identity.Superuser,
		"can_manage_sources": canManage || identity.Superuser,
	}
	return snapshot, nil
}

// ---- source management ----

// SourceSummary is the caller-facing view of a source. Connection and
// security details are present only for callers who can manage the source,
// and credentials are never echoed back.
type SourceSummary struct {
	ID             uint                     `json:"id"`
	Name           string                   `json:"name"`
	Kind           domain.SourceKind        `json:"kind"`
	Description    string                   `json:"description,omitempty"`
	IsPublic       bool                     `json:"is_public"`
	AllowWriteBack bool                     `json:"allow_write_back"`
	UI             domain.UIDescriptor      `json:"ui"`
	Connection     *domain.ConnectionConfig `json:"connection,omitempty"`
	Security       *domain.SecurityPolicy   `json:"security,omitempty"`
}

func summarize(a domain.SourceAccess) SourceSummary {
	summary := SourceSummary{
		ID:             a.Source.ID,
		Name:           a.Source.Key(),
		Kind:           a.Source.Kind,
		Description:    a.Source.Description,
		IsPublic:       a.Source.IsPublic(),
		AllowWriteBack: a.Source.AllowWriteBack,
		UI:             a.Source.UI,
	}
	if a.CanManage || a.CanAdmin {
		conn := a.Source.Connection
		conn.DBPassword = ""
		sec := a.Source.Security
		summary.Connection = &conn
		summary.Security = &sec
	}
	return summary
}

func (s *GatewayService) ListSources(ctx context.Context, identity *domain.Identity) ([]SourceSummary, error) {
	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return nil, err
	}

	summaries := make([]SourceSummary, 0, len(profile))
	for _, a := range profile {
		if accessible(a, identity) {
			summaries = append(summaries, summarize(a))
		}
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

type VirtualRDFSourceInput struct {
	Name           string                  `json:"name"`
	Description    string                  `json:"description"`
	Connection     domain.ConnectionConfig `json:"connection"`
	Security       domain.SecurityPolicy   `json:"security"`
	UI             domain.UIDescriptor     `json:"ui"`
	AllowWriteBack bool                    `json:"allow_write_back"`
	ApplyRuntime   bool                    `json:"apply_runtime"`
}

func (s *GatewayService) CreateVirtualRDFSource(ctx context.Context, identity *domain.Identity, in VirtualRDFSourceInput) (SourceSummary, domain.RuntimeOutcome, error) {
	if identity == nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}
	if domain.NormalizeSourceName(in.Name) == "" {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrInvalidInput("name_required", "source name is required")
	}
	if strings.TrimSpace(in.Connection.SparqlURL) == "" && strings.TrimSpace(in.Connection.RDBMSConnString) == "" {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrInvalidInput("connection_required", "a sparql endpoint or database connection is required")
	}

	created, err := s.repo.CreateSource(ctx, domain.Source{
		Name:           in.Name,
		Kind:           domain.KindVirtualRDF,
		Description:    in.Description,
		Active:         true,
		Connection:     in.Connection,
		Security:       in.Security,
		UI:             in.UI,
		AllowWriteBack: in.AllowWriteBack,
		CreatedByID:    &identity.UserID,
	})
	if err != nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, err
	}

	for _, perm := range []string{domain.PermView, domain.PermQuery, domain.PermManage} {
		if err := s.repo.Grant(ctx, domain.PermissionGrant{SourceID: created.ID, UserID: identity.UserID, Permission: perm}); err != nil {
			return SourceSummary{}, domain.RuntimeOutcome{}, err
		}
	}

	s.registry.Ensure(created)
	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &identity.UserID, Action: "source.create", TargetType: "source", TargetID: &created.ID, Metadata: created.Key()})

	outcome := domain.RuntimeOutcome{}
	if in.ApplyRuntime && s.runtime != nil {
		outcome, err = s.runtime.Apply(ctx, created)
		if err != nil {
			return SourceSummary{}, domain.RuntimeOutcome{}, err
		}
	}

	access := domain.SourceAccess{Source: created, HasGrant: true, CanQuery: true, CanWriteBack: identity.Superuser, CanManage: true, CanAdmin: identity.Superuser}
	return summarize(access), outcome, nil
}

type SourceConfigUpdate struct {
	Connection     *domain.ConnectionConfig `json:"connection,omitempty"`
	Security       *domain.SecurityPolicy   `json:"security,omitempty"`
	UI             *domain.UIDescriptor     `json:"ui,omitempty"`
	Description    *string                  `json:"description,omitempty"`
	AllowWriteBack *bool                    `json:"allow_write_back,omitempty"`
	Active         *bool                    `json:"active,omitempty"`
	ApplyRuntime   bool                     `json:"apply_runtime,omitempty"`
}

func (s *GatewayService) UpdateSourceConfig(ctx context.Context, identity *domain.Identity, name string, in SourceConfigUpdate) (SourceSummary, domain.RuntimeOutcome, error) {
	if identity == nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}

	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, err
	}

	key := domain.NormalizeSourceName(name)
	var target *domain.SourceAccess
	for i := range profile {
		if profile[i].Source.Key() == key {
			target = &profile[i]
			break
		}
	}
	if target == nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrNotFound("source_not_found", "source %q not found", key)
	}
	if !target.CanManage {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrForbidden("manage_required", "managing %q requires a manage grant", key)
	}
	if (in.Security != nil || in.Active != nil) && !target.CanAdmin {
		return SourceSummary{}, domain.RuntimeOutcome{}, domain.ErrForbidden("admin_required", "changing the security policy of %q requires an admin grant", key)
	}

	updated, err := s.repo.UpdateSource(ctx, target.Source.ID, domain.SourceUpdate{
		Connection:     in.Connection,
		Security:       in.Security,
		UI:             in.UI,
		Description:    in.Description,
		AllowWriteBack: in.AllowWriteBack,
		Active:         in.Active,
	})
	if err != nil {
		return SourceSummary{}, domain.RuntimeOutcome{}, err
	}

	s.registry.Replace(updated)
	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &identity.UserID, Action: "source.update", TargetType: "source", TargetID: &updated.ID, Metadata: updated.Key()})

	outcome := domain.RuntimeOutcome{}
	if in.ApplyRuntime && updated.Kind == domain.KindVirtualRDF && s.runtime != nil {
		outcome, err = s.runtime.Apply(ctx, updated)
		if err != nil {
			return SourceSummary{}, domain.RuntimeOutcome{}, err
		}
	}

	access := domain.SourceAccess{Source: updated, HasGrant: target.HasGrant, CanQuery: target.CanQuery, CanWriteBack: target.CanWriteBack, CanManage: true, CanAdmin: target.CanAdmin}
	return summarize(access), outcome, nil
}

// SeedDefaultSources installs the default public adapters on an empty store.
func (s *GatewayService) SeedDefaultSources(ctx context.Context) error {
	existing, err := s.repo.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	public := true
	defaults := []domain.Source{
		{
			Name:        "wikidata",
			Kind:        domain.KindExternalAPI,
			Description: "General knowledge base",
			Active:      true,
			Connection: domain.ConnectionConfig{
				APIURL:    "https://www.wikidata.org/w/api.php",
				SparqlURL: "https://query.wikidata.org/sparql",
			},
			Security: domain.SecurityPolicy{IsPublic: &public},
			UI:       domain.UIDescriptor{DisplayName: "Wikidata", Icon: "globe", Color: "#006699"},
		},
		{
			Name:        "ols",
			Kind:        domain.KindOntologyLookup,
			Description: "Ontology term lookup",
			Active:      true,
			Connection: domain.ConnectionConfig{
				APIURL: "https://www.ebi.ac.uk/ols4/api",
			},
			UI: domain.UIDescriptor{DisplayName: "Ontology Lookup", Icon: "book", Color: "#2e7d32"},
		},
	}

	for _, src := range defaults {
		created, err := s.repo.CreateSource(ctx, src)
		if err != nil {
			return err
		}
		s.registry.Ensure(created)
	}
	s.logger.Info("seeded default sources", zap.Int("count", len(defaults)))
	return nil
}

// SyncRegistry materializes adapters for every active source.
func (s *GatewayService) SyncRegistry(ctx context.Context) error {
	sources, err := s.repo.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, src := range sources {
		s.registry.Ensure(src)
	}
	return nil
}

// ---- write-back workflow ----

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type WriteBackInput struct {
	SourceName string         `json:"source"`
	Operation  string         `json:"operation"`
	TableName  string         `json:"table_name"`
	PrimaryKey string         `json:"primary_key,omitempty"`
	OldValues  map[string]any `json:"old_values,omitempty"`
	NewValues  map[string]any `json:"new_values,omitempty"`
}

func (s *GatewayService) CreateWriteBack(ctx context.Context, identity *domain.Identity, in WriteBackInput) (domain.WriteBackRequest, error) {
	if identity == nil {
		return domain.WriteBackRequest{}, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}

	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return domain.WriteBackRequest{}, err
	}
	key := domain.NormalizeSourceName(in.SourceName)
	var target *domain.SourceAccess
	for i := range profile {
		if profile[i].Source.Key() == key {
			target = &profile[i]
			break
		}
	}
	if target == nil {
		return domain.WriteBackRequest{}, domain.ErrNotFound("source_not_found", "source %q not found", key)
	}
	if !target.Source.AllowWriteBack {
		return domain.WriteBackRequest{}, domain.ErrForbidden("write_back_disabled", "source %q does not accept write-back requests", key)
	}
	if !target.CanWriteBack {
		return domain.WriteBackRequest{}, domain.ErrForbidden("write_back_denied", "no write-back grant on source %q", key)
	}

	op := strings.ToLower(strings.TrimSpace(in.Operation))
	switch op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete:
	default:
		return domain.WriteBackRequest{}, domain.ErrInvalidInput("bad_operation", "operation must be insert, update or delete")
	}
	if !tableNameRe.MatchString(in.TableName) {
		return domain.WriteBackRequest{}, domain.ErrInvalidInput("bad_table_name", "table name must be a plain identifier")
	}
	if op != domain.OpInsert && strings.TrimSpace(in.PrimaryKey) == "" {
		return domain.WriteBackRequest{}, domain.ErrInvalidInput("primary_key_required", "update and delete require a primary key")
	}
	if op != domain.OpDelete && len(in.NewValues) == 0 {
		return domain.WriteBackRequest{}, domain.ErrInvalidInput("new_values_required", "insert and update require new values")
	}

	created, err := s.repo.CreateWriteBack(ctx, domain.WriteBackRequest{
		SourceID:      target.Source.ID,
		RequestedByID: identity.UserID,
		Operation:     op,
		TableName:     in.TableName,
		PrimaryKey:    strings.TrimSpace(in.PrimaryKey),
		OldValues:     in.OldValues,
		NewValues:     in.NewValues,
	})
	if err != nil {
		return domain.WriteBackRequest{}, err
	}

	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &identity.UserID, Action: "write_back.create", TargetType: "write_back", TargetID: &created.ID, Metadata: fmt.Sprintf("%s %s on %s", op, in.TableName, key)})
	return created, nil
}

// reviewableSourceIDs lists sources the caller can review requests for.
// Reviewing is an admin right; a manage grant is not enough.
func reviewableSourceIDs(profile []domain.SourceAccess) []uint {
	ids := make([]uint, 0)
	for _, a := range profile {
		if a.CanAdmin {
			ids = append(ids, a.Source.ID)
		}
	}
	return ids
}

func (s *GatewayService) ListWriteBacks(ctx context.Context, identity *domain.Identity, limit int) ([]domain.WriteBackRequest, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	if identity.Superuser {
		return s.repo.ListWriteBacks(ctx, domain.WriteBackFilter{}, limit)
	}

	own, err := s.repo.ListWriteBacks(ctx, domain.WriteBackFilter{RequesterID: &identity.UserID}, limit)
	if err != nil {
		return nil, err
	}

	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return nil, err
	}
	reviewerScope := reviewableSourceIDs(profile)
	if len(reviewerScope) == 0 {
		return own, nil
	}

	reviewable, err := s.repo.ListWriteBacks(ctx, domain.WriteBackFilter{SourceIDs: reviewerScope}, limit)
	if err != nil {
		return nil, err
	}

	seen := make(map[uint]bool, len(own))
	merged := make([]domain.WriteBackRequest, 0, len(own)+len(reviewable))
	for _, r := range own {
		seen[r.ID] = true
		merged = append(merged, r)
	}
	for _, r := range reviewable {
		if !seen[r.ID] {
			merged = append(merged, r)
		}
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ID > merged[j].ID })
	if len(merged) > limit {
		merged = merged[:limit]
	}
	return merged, nil
}

func (s *GatewayService) GetWriteBack(ctx context.Context, identity *domain.Identity, id uint) (domain.WriteBackRequest, error) {
	if identity == nil {
		return domain.WriteBackRequest{}, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}

	request, err := s.repo.GetWriteBack(ctx, id)
	if err != nil {
		return domain.WriteBackRequest{}, err
	}
	if identity.Superuser || request.RequestedByID == identity.UserID {
		return request, nil
	}

	profile, err := s.accessProfile(ctx, identity)
	if err != nil {
		return domain.WriteBackRequest{}, err
	}
	for _, sourceID := range reviewableSourceIDs(profile) {
		if sourceID == request.SourceID {
			return request, nil
		}
	}
	return domain.WriteBackRequest{}, domain.ErrForbidden("access_denied", "not the requester or a reviewer of request %d", id)
}

// ReviewWriteBack applies an approve or reject decision. Execution of
// approved requests is a separate, not yet wired, step.
func (s *GatewayService) ReviewWriteBack(ctx context.Context, identity *domain.Identity, id uint, action, reason string) (domain.WriteBackRequest, error) {
	if identity == nil {
		return domain.WriteBackRequest{}, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}

	action = strings.ToLower(strings.TrimSpace(action))
	if action == "" {
		action = "approve"
	}
	if action != "approve" && action != "reject" {
		return domain.WriteBackRequest{}, domain.ErrInvalidInput("bad_action", "action must be approve or reject")
	}

	request, err := s.repo.GetWriteBack(ctx, id)
	if err != nil {
		return domain.WriteBackRequest{}, err
	}

	if !identity.Superuser {
		profile, err := s.accessProfile(ctx, identity)
		if err != nil {
			return domain.WriteBackRequest{}, err
		}
		allowed := false
		for _, sourceID := range reviewableSourceIDs(profile) {
			if sourceID == request.SourceID {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.WriteBackRequest{}, domain.ErrForbidden("review_denied", "reviewing requests on this source requires an admin grant")
		}
	}

	// Re-approving an approved request is tolerated; a rejected request needs
	// a fresh submission, and an approval is never flipped to a rejection.
	if request.Status == domain.WriteBackRejected || (request.Status == domain.WriteBackApproved && action == "reject") {
		return domain.WriteBackRequest{}, domain.ErrConflict("already_decided", "request %d is already %s", id, request.Status)
	}

	now := time.Now().UTC()
	request.ApprovedByID = &identity.UserID
	request.ApprovedAt = &now
	if action == "approve" {
		request.Status = domain.WriteBackApproved
		request.RejectionReason = ""
	} else {
		request.Status = domain.WriteBackRejected
		request.RejectionReason = strings.TrimSpace(reason)
		if request.RejectionReason == "" {
			request.RejectionReason = "Rejected by approver"
		}
	}

	updated, err := s.repo.UpdateWriteBackStatus(ctx, request)
	if err != nil {
		return domain.WriteBackRequest{}, err
	}

	_ = s.repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &identity.UserID, Action: "write_back." + action, TargetType: "write_back", TargetID: &updated.ID, Metadata: updated.Status})
	return updated, nil
}

// ---- audit ----

func (s *GatewayService) ListAuditLogs(ctx context.Context, identity *domain.Identity, limit int) ([]domain.AuditRecord, error) {
	if identity == nil {
		return nil, domain.ErrUnauthenticated("authentication_required", "authentication required")
	}
	if !identity.Superuser {
		return nil, domain.ErrForbidden("superuser_required", "audit logs are restricted to superusers")
	}
	if limit <= 0 {
		limit = 200
	}
	if limit > 2000 {
		limit = 2000
	}
	return s.repo.ListAuditLogs(ctx, limit)
}

// ---- helpers ----

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func newTokenPair() (string, string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	plain := base64.RawURLEncoding.EncodeToString(raw)
	return plain, hashToken(plain), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", sum[:])
}

func defaultString(input, fallback string) string {
	if strings.TrimSpace(input) == "" {
		return fallback
	}
	return input
}

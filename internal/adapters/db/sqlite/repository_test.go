package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

func newTestRepo(t *testing.T) *GatewayRepository {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := RunMigrations(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGatewayRepository(db)
}

func boolPtr(v bool) *bool { return &v }

func TestSourceRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateSource(ctx, domain.Source{
		Name:   "Local Triples",
		Kind:   domain.KindTripleStore,
		Active: true,
		Connection: domain.ConnectionConfig{
			EndpointURL: "http://localhost:7878",
		},
		Security: domain.SecurityPolicy{
			IsPublic:     boolPtr(false),
			QueryDomains: []string{"research"},
		},
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if created.Name != "local_triples" {
		t.Fatalf("expected normalized name, got %q", created.Name)
	}

	got, err := repo.GetSource(ctx, created.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if got.Kind != domain.KindTripleStore {
		t.Fatalf("expected triple_store kind, got %q", got.Kind)
	}
	if got.Connection.EndpointURL != "http://localhost:7878" {
		t.Fatalf("connection config did not round-trip: %+v", got.Connection)
	}
	if got.Security.IsPublic == nil || *got.Security.IsPublic {
		t.Fatalf("security policy did not round-trip: %+v", got.Security)
	}

	if _, err := repo.CreateSource(ctx, domain.Source{Name: "Local Triples", Kind: domain.KindTripleStore, Active: true}); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}
}

func TestUpdateSourcePartial(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	created, err := repo.CreateSource(ctx, domain.Source{
		Name:        "ontop",
		Kind:        domain.KindVirtualRDF,
		Active:      true,
		Description: "virtual rdf over postgres",
		Connection:  domain.ConnectionConfig{SparqlURL: "http://ontop:8080/sparql"},
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	updated, err := repo.UpdateSource(ctx, created.ID, domain.SourceUpdate{
		Security: &domain.SecurityPolicy{AdminOnlyQueryTerms: []string{"salaries"}},
	})
	if err != nil {
		t.Fatalf("update source: %v", err)
	}
	if updated.Connection.SparqlURL != "http://ontop:8080/sparql" {
		t.Fatalf("untouched connection field was overwritten: %+v", updated.Connection)
	}
	if len(updated.Security.AdminOnlyQueryTerms) != 1 {
		t.Fatalf("security update not applied: %+v", updated.Security)
	}
	if updated.Description != "virtual rdf over postgres" {
		t.Fatalf("description should be untouched, got %q", updated.Description)
	}

	if _, err := repo.UpdateSource(ctx, 9999, domain.SourceUpdate{}); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListActiveExcludesInactive(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateSource(ctx, domain.Source{Name: "b_source", Kind: domain.KindTripleStore, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.CreateSource(ctx, domain.Source{Name: "a_source", Kind: domain.KindInternalDB, Active: true}); err != nil {
		t.Fatalf("create: %v", err)
	}
	off, err := repo.CreateSource(ctx, domain.Source{Name: "retired", Kind: domain.KindTripleStore, Active: true})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.UpdateSource(ctx, off.ID, domain.SourceUpdate{Active: boolPtr(false)}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	sources, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 active sources, got %d", len(sources))
	}
	if sources[0].Name != "a_source" || sources[1].Name != "b_source" {
		t.Fatalf("expected name-ascending order, got %q, %q", sources[0].Name, sources[1].Name)
	}
}

func TestGrantIdempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	grant := domain.PermissionGrant{SourceID: 1, UserID: 7, Permission: domain.PermQuery}
	if err := repo.Grant(ctx, grant); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := repo.Grant(ctx, grant); err != nil {
		t.Fatalf("re-grant should be a no-op: %v", err)
	}

	grants, err := repo.GrantsForUser(ctx, 7)
	if err != nil {
		t.Fatalf("grants for user: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grants))
	}
}

func TestWriteBackLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	requester, err := repo.CreateUser(ctx, domain.User{Username: "alice", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	approver, err := repo.CreateUser(ctx, domain.User{Username: "bob", PasswordHash: "x", Superuser: true})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	src, err := repo.CreateSource(ctx, domain.Source{Name: "warehouse", Kind: domain.KindInternalDB, Active: true, AllowWriteBack: true})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	created, err := repo.CreateWriteBack(ctx, domain.WriteBackRequest{
		SourceID:      src.ID,
		RequestedByID: requester.ID,
		Operation:     domain.OpUpdate,
		TableName:     "ingredients",
		PrimaryKey:    "42",
		NewValues:     map[string]any{"label": "maize"},
	})
	if err != nil {
		t.Fatalf("create write-back: %v", err)
	}
	if created.Status != domain.WriteBackPending {
		t.Fatalf("expected pending, got %q", created.Status)
	}
	if created.RequestedBy != "alice" || created.SourceName != "warehouse" {
		t.Fatalf("expected hydrated names, got %+v", created)
	}

	now := time.Now()
	created.Status = domain.WriteBackApproved
	created.ApprovedByID = &approver.ID
	created.ApprovedAt = &now
	approved, err := repo.UpdateWriteBackStatus(ctx, created)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.WriteBackApproved || approved.ApprovedBy != "bob" {
		t.Fatalf("approval not persisted: %+v", approved)
	}

	mine, err := repo.ListWriteBacks(ctx, domain.WriteBackFilter{RequesterID: &requester.ID}, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 request for requester, got %d", len(mine))
	}
	if mine[0].NewValues["label"] != "maize" {
		t.Fatalf("new values did not round-trip: %+v", mine[0].NewValues)
	}
}

func TestTokenLookup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, domain.User{Username: "carol", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := repo.CreateAPIToken(ctx, domain.APIToken{UserID: user.ID, Name: "cli", TokenHash: "abc123"}); err != nil {
		t.Fatalf("create token: %v", err)
	}

	tok, err := repo.GetAPITokenByHash(ctx, "abc123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if tok.UserID != user.ID {
		t.Fatalf("wrong user: %+v", tok)
	}

	if _, err := repo.GetAPITokenByHash(ctx, "nope"); domain.KindOf(err) != domain.KindUnauthenticated {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	expired := time.Now().Add(-time.Hour)
	if _, err := repo.CreateAPIToken(ctx, domain.APIToken{UserID: user.ID, Name: "old", TokenHash: "old123", ExpiresAt: &expired}); err != nil {
		t.Fatalf("create token: %v", err)
	}
	if _, err := repo.GetAPITokenByHash(ctx, "old123"); domain.KindOf(err) != domain.KindUnauthenticated {
		t.Fatalf("expected expiry rejection, got %v", err)
	}
}

func TestAuditLogListing(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	user, err := repo.CreateUser(ctx, domain.User{Username: "dave", PasswordHash: "x"})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := repo.CreateAuditLog(ctx, domain.AuditLog{ActorUserID: &user.ID, Action: "login", TargetType: "user", TargetID: &user.ID}); err != nil {
		t.Fatalf("create audit log: %v", err)
	}

	logs, err := repo.ListAuditLogs(ctx, 10)
	if err != nil {
		t.Fatalf("list audit logs: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("expected 1 log, got %d", len(logs))
	}
	if logs[0].ActorUsername != "dave" {
		t.Fatalf("expected joined username, got %q", logs[0].ActorUsername)
	}
}

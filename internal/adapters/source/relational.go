package source

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"gorm.io/gorm"
)

// blockedSQLPatterns are rejected anywhere in a statement, case-insensitive.
// They cover file access, sleep-based probing and server-side copy channels.
var blockedSQLPatterns = []string{
	"pg_read_file",
	"pg_ls_dir",
	"pg_sleep",
	"dblink",
	"copy",
	"into outfile",
}

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const statementBudget = 5 * time.Second

// RelationalAdapter runs gated read-only SELECTs against a relational
// database. For the internal source it shares the record store's handle.
type RelationalAdapter struct {
	name       string
	db         *gorm.DB
	table      string
	idColumn   string
	textColumn string
}

func NewRelationalAdapter(src domain.Source, db *gorm.DB) *RelationalAdapter {
	return &RelationalAdapter{
		name:       src.Key(),
		db:         db,
		table:      src.Connection.SearchTable,
		idColumn:   src.Connection.SearchIDColumn,
		textColumn: src.Connection.SearchTextColumn,
	}
}

func (a *RelationalAdapter) Name() string            { return a.name }
func (a *RelationalAdapter) Kind() domain.SourceKind { return domain.KindInternalDB }

func (a *RelationalAdapter) searchConfigured() bool {
	return identifierRe.MatchString(a.table) &&
		identifierRe.MatchString(a.idColumn) &&
		identifierRe.MatchString(a.textColumn)
}

func (a *RelationalAdapter) Search(ctx context.Context, query string, limit int) ([]domain.SearchResult, error) {
	if !a.searchConfigured() {
		return nil, domain.ErrInvalidInput("search_not_configured", "source %q has no search table configured", a.name)
	}

	ctx, cancel := context.WithTimeout(ctx, statementBudget)
	defer cancel()

	type row struct {
		ID    string
		Label string
	}
	rows := make([]row, 0)
	sql := "SELECT " + a.idColumn + " AS id, " + a.textColumn + " AS label FROM " + a.table +
		" WHERE " + a.textColumn + " LIKE ? LIMIT ?"
	if err := a.db.WithContext(ctx).Raw(sql, "%"+query+"%", limit).Scan(&rows).Error; err != nil {
		return nil, domain.ErrBackendUnavailable("internal_db_failed", "internal database query failed")
	}

	results := make([]domain.SearchResult, 0, len(rows))
	for _, r := range rows {
		results = append(results, domain.SearchResult{
			Label:      r.Label,
			ID:         r.ID,
			Confidence: 0.9,
			Source:     a.name,
		})
	}
	return results, nil
}

// CheckSQL validates a statement against the read-only gate without running
// it. Exposed so the dispatcher can reject before selecting an adapter.
func CheckSQL(query string) error {
	trimmed := strings.TrimSpace(query)
	lowered := strings.ToLower(trimmed)
	if !strings.HasPrefix(lowered, "select") {
		return domain.ErrInvalidInput("sql_not_select", "only SELECT statements are accepted")
	}
	if strings.Contains(trimmed, ";") {
		return domain.ErrInvalidInput("sql_multi_statement", "semicolons are not accepted")
	}
	for _, pattern := range blockedSQLPatterns {
		if strings.Contains(lowered, pattern) {
			return domain.ErrInvalidInput("sql_blocked_pattern", "statement contains a blocked pattern")
		}
	}
	return nil
}

func (a *RelationalAdapter) Query(ctx context.Context, query string) (domain.QueryResult, error) {
	if err := CheckSQL(query); err != nil {
		return domain.QueryResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, statementBudget)
	defer cancel()

	start := time.Now()
	rows := make([]map[string]any, 0)
	if err := a.db.WithContext(ctx).Raw(query).Scan(&rows).Error; err != nil {
		if ctx.Err() != nil {
			return domain.QueryResult{}, domain.ErrBackendUnavailable("internal_db_timeout", "statement exceeded the execution budget")
		}
		return domain.QueryResult{}, domain.ErrInvalidInput("sql_rejected", "database rejected the statement")
	}

	return domain.QueryResult{
		Results:       rows,
		Total:         len(rows),
		SourceType:    domain.KindInternalDB,
		ExecutionTime: time.Since(start).Seconds(),
		Status:        "success",
	}, nil
}

func (a *RelationalAdapter) NodeDetails(ctx context.Context, nodeID string) (domain.MapNode, error) {
	if !a.searchConfigured() {
		return domain.MapNode{}, domain.ErrInvalidInput("search_not_configured", "source %q has no search table configured", a.name)
	}

	ctx, cancel := context.WithTimeout(ctx, statementBudget)
	defer cancel()

	type row struct {
		ID    string
		Label string
	}
	var r row
	sql := "SELECT " + a.idColumn + " AS id, " + a.textColumn + " AS label FROM " + a.table +
		" WHERE " + a.idColumn + " = ? LIMIT 1"
	result := a.db.WithContext(ctx).Raw(sql, nodeID).Scan(&r)
	if result.Error != nil {
		return domain.MapNode{}, domain.ErrBackendUnavailable("internal_db_failed", "internal database query failed")
	}
	if result.RowsAffected == 0 {
		return domain.MapNode{}, domain.ErrNotFound("node_not_found", "node %q not found", nodeID)
	}
	return domain.MapNode{ID: r.ID, Label: r.Label}, nil
}

func (a *RelationalAdapter) Relationships(ctx context.Context, nodeID string) ([]domain.Relationship, error) {
	// Row stores carry no typed edges.
	return []domain.Relationship{}, nil
}

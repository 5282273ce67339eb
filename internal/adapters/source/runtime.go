package source

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"go.uber.org/zap"
)

// Restarter restarts the virtual-rdf endpoint process so a new runtime
// configuration takes effect. Deployments without process control leave it
// nil and operators restart by hand.
type Restarter interface {
	Restart(ctx context.Context) error
}

// RuntimeMaterializer renders virtual-rdf connection settings into a JDBC
// runtime.properties file consumed by the endpoint container.
type RuntimeMaterializer struct {
	dir       string
	restarter Restarter
	logger    *zap.Logger
}

func NewRuntimeMaterializer(dir string, restarter Restarter, logger *zap.Logger) *RuntimeMaterializer {
	return &RuntimeMaterializer{dir: dir, restarter: restarter, logger: logger}
}

// JDBCURL converts a database URL into its JDBC form. Postgres URLs get the
// jdbc:postgresql scheme; already-jdbc strings pass through unchanged.
func JDBCURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "jdbc:") {
		return trimmed, nil
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", domain.ErrInvalidInput("bad_connection_string", "connection string is not a valid URL")
	}
	switch parsed.Scheme {
	case "postgres", "postgresql":
		host := parsed.Host
		if parsed.Port() == "" {
			host += ":5432"
		}
		return "jdbc:postgresql://" + host + parsed.Path, nil
	default:
		return "", domain.ErrInvalidInput("bad_connection_string", "unsupported database scheme %q", parsed.Scheme)
	}
}

func jdbcDriver(jdbcURL string) string {
	if strings.HasPrefix(jdbcURL, "jdbc:postgresql:") {
		return "org.postgresql.Driver"
	}
	return ""
}

// Apply writes the properties file for the source and restarts the endpoint
// when a restarter is wired. RestartRequired is set whenever the file changed
// but no restart happened.
func (m *RuntimeMaterializer) Apply(ctx context.Context, src domain.Source) (domain.RuntimeOutcome, error) {
	if m == nil || m.dir == "" {
		return domain.RuntimeOutcome{RestartRequired: true}, nil
	}

	jdbcURL, err := JDBCURL(src.Connection.RDBMSConnString)
	if err != nil {
		return domain.RuntimeOutcome{}, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "jdbc.url=%s\n", jdbcURL)
	fmt.Fprintf(&b, "jdbc.user=%s\n", src.Connection.DBUser)
	fmt.Fprintf(&b, "jdbc.password=%s\n", src.Connection.DBPassword)
	if driver := jdbcDriver(jdbcURL); driver != "" {
		fmt.Fprintf(&b, "jdbc.driver=%s\n", driver)
	}

	path := filepath.Join(m.dir, src.Key()+".runtime.properties")
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return domain.RuntimeOutcome{}, err
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return domain.RuntimeOutcome{}, err
	}

	outcome := domain.RuntimeOutcome{Applied: true, PropertiesPath: path}
	if m.restarter == nil {
		outcome.RestartRequired = true
		return outcome, nil
	}

	if err := m.restarter.Restart(ctx); err != nil {
		m.logger.Warn("virtual-rdf endpoint restart failed",
			zap.String("source", src.Key()),
			zap.Error(err))
		outcome.RestartRequired = true
		return outcome, nil
	}
	outcome.Restarted = true
	return outcome, nil
}

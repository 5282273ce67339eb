package source

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
	"go.uber.org/zap"
)

func TestJDBCURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"postgres://db.internal:5433/foods", "jdbc:postgresql://db.internal:5433/foods"},
		{"postgresql://db.internal/foods", "jdbc:postgresql://db.internal:5432/foods"},
		{"jdbc:postgresql://db.internal:5432/foods", "jdbc:postgresql://db.internal:5432/foods"},
	}
	for _, c := range cases {
		got, err := JDBCURL(c.in)
		if err != nil {
			t.Errorf("JDBCURL(%q) error: %v", c.in, err)
			continue
		}
		if got != c.want {
			t.Errorf("JDBCURL(%q) = %q, want %q", c.in, got, c.want)
		}
	}

	if _, err := JDBCURL("mysql://db/foods"); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input for unsupported scheme, got %v", err)
	}
}

type fakeRestarter struct {
	called bool
	err    error
}

func (f *fakeRestarter) Restart(ctx context.Context) error {
	f.called = true
	return f.err
}

func TestApplyWritesPropertiesAndRestarts(t *testing.T) {
	dir := t.TempDir()
	restarter := &fakeRestarter{}
	m := NewRuntimeMaterializer(dir, restarter, zap.NewNop())

	src := domain.Source{
		Name: "ontop",
		Kind: domain.KindVirtualRDF,
		Connection: domain.ConnectionConfig{
			RDBMSConnString: "postgres://db.internal:5432/foods",
			DBUser:          "reader",
			DBPassword:      "secret",
		},
	}

	outcome, err := m.Apply(context.Background(), src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Applied || !outcome.Restarted || outcome.RestartRequired {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !restarter.called {
		t.Fatalf("restarter not invoked")
	}

	data, err := os.ReadFile(outcome.PropertiesPath)
	if err != nil {
		t.Fatalf("read properties: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "jdbc.url=jdbc:postgresql://db.internal:5432/foods") {
		t.Fatalf("jdbc url missing: %s", content)
	}
	if !strings.Contains(content, "jdbc.driver=org.postgresql.Driver") {
		t.Fatalf("driver missing: %s", content)
	}
}

func TestApplyWithoutRestarterReportsRestartRequired(t *testing.T) {
	m := NewRuntimeMaterializer(t.TempDir(), nil, zap.NewNop())

	src := domain.Source{
		Name:       "ontop",
		Kind:       domain.KindVirtualRDF,
		Connection: domain.ConnectionConfig{RDBMSConnString: "postgres://db/foods"},
	}

	outcome, err := m.Apply(context.Background(), src)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !outcome.Applied || outcome.Restarted || !outcome.RestartRequired {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
}

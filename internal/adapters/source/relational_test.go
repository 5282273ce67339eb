package source

import (
	"testing"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

func TestCheckSQL(t *testing.T) {
	ok := []string{
		"SELECT * FROM ingredients",
		"  select name from crops where region = 'andes'",
	}
	for _, q := range ok {
		if err := CheckSQL(q); err != nil {
			t.Errorf("CheckSQL(%q) = %v, want nil", q, err)
		}
	}

	bad := []string{
		"DROP TABLE users",
		"SELECT * FROM users; DROP TABLE users;",
		"SELECT pg_read_file('/etc/passwd')",
		"SELECT pg_sleep(10)",
		"SELECT * FROM dblink('host=evil', 'select 1')",
		"SELECT name INTO OUTFILE '/tmp/x' FROM users",
	}
	for _, q := range bad {
		if err := CheckSQL(q); domain.KindOf(err) != domain.KindInvalidInput {
			t.Errorf("CheckSQL(%q) = %v, want invalid input", q, err)
		}
	}
}

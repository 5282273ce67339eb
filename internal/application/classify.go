package application

import (
	"regexp"
	"strings"

	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// Classification is the routing hint derived from a query string and the
// optional explicit query type. A query may sniff as both SPARQL and SQL
// (leading SELECT); the per-source gate settles which one applies.
type Classification struct {
	Search bool
	Term   string
	SPARQL bool
	SQL    bool
}

var sparqlRe = regexp.MustCompile(`(?i)^\s*(prefix|select|ask|construct|describe)\b`)
var sqlRe = regexp.MustCompile(`(?i)^\s*select\b`)

// Classify is pure: no network, no store access.
func Classify(query, queryType string) Classification {
	trimmed := strings.TrimSpace(query)
	lowered := strings.ToLower(trimmed)

	if strings.EqualFold(strings.TrimSpace(queryType), "search") {
		return Classification{Search: true, Term: trimmed}
	}
	if strings.HasPrefix(lowered, "search:") {
		return Classification{Search: true, Term: strings.TrimSpace(trimmed[len("search:"):])}
	}

	c := Classification{Term: trimmed}
	if sparqlRe.MatchString(trimmed) {
		c.SPARQL = true
	}
	if sqlRe.MatchString(trimmed) && !strings.Contains(trimmed, ";") {
		c.SQL = true
	}
	return c
}

var wildcardTrim = strings.NewReplacer("%", "", "*", "", "_", "")

// AdminTerms collects the case-folded terms that gate a virtual-rdf source
// to administrators. Table patterns contribute their wildcard-stripped core.
func AdminTerms(policy domain.SecurityPolicy) []string {
	terms := make([]string, 0, len(policy.AdminOnlyQueryTerms)+len(policy.AdminOnlyTablePatterns))
	for _, t := range policy.AdminOnlyQueryTerms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			terms = append(terms, t)
		}
	}
	for _, p := range policy.AdminOnlyTablePatterns {
		t := strings.ToLower(strings.TrimSpace(wildcardTrim.Replace(p)))
		if t != "" {
			terms = append(terms, t)
		}
	}
	return terms
}

// matchAdminTerm reports the first gating term found in the query.
func matchAdminTerm(query string, terms []string) (string, bool) {
	lowered := strings.ToLower(query)
	for _, t := range terms {
		if strings.Contains(lowered, t) {
			return t, true
		}
	}
	return "", false
}

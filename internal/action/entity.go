package action

import (
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/resolvd/internal/classifier"
)

var (
	queryTableRe   = regexp.MustCompile("(?i)\\b(?:from|into|table|update|join)\\s+(?:if\\s+(?:not\\s+)?exists\\s+)?[`\"]?([A-Za-z0-9_$.`\"]+)")
	quotedRe       = regexp.MustCompile("['\"`]([^'\"`]+)['\"`]")
	messageTableRe = regexp.MustCompile(`(?i)\btable:?\s+([A-Za-z0-9_.]+)`)
	wordRe         = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)
)

// ExtractTable finds the first table a query references after
// FROM, INTO, TABLE, UPDATE or JOIN. Schema qualifiers are dropped.
func ExtractTable(query string) string {
	m := queryTableRe.FindStringSubmatch(query)
	if m == nil {
		return ""
	}
	return bareName(m[1])
}

// EntityName resolves the table an event is about: the explicit
// context["table"], then the query in context["query"], then a quoted
// literal or "table x" in the message.
func EntityName(ev classifier.ErrorEvent) string {
	if t := ev.ContextString("table"); t != "" {
		return bareName(t)
	}
	if t := ExtractTable(ev.ContextString("query")); t != "" {
		return t
	}
	if m := quotedRe.FindStringSubmatch(ev.RawMessage); m != nil {
		return bareName(m[1])
	}
	if m := messageTableRe.FindStringSubmatch(ev.RawMessage); m != nil {
		return bareName(m[1])
	}
	return ""
}

func bareName(s string) string {
	s = strings.Trim(s, "`\"'")
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return strings.ToLower(strings.Trim(s, "`\"'"))
}

var sqlWords = map[string]bool{
	"select": true, "from": true, "where": true, "and": true, "or": true, "not": true,
	"insert": true, "into": true, "values": true, "update": true, "set": true,
	"delete": true, "join": true, "left": true, "right": true, "inner": true,
	"outer": true, "on": true, "as": true, "order": true, "by": true, "group": true,
	"limit": true, "offset": true, "null": true, "is": true, "in": true, "like": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true, "distinct": true,
	"desc": true, "asc": true, "having": true, "table": true, "create": true, "true": true,
	"false": true, "now": true, "between": true, "exists": true, "if": true,
}

// queryColumns returns identifiers in query that look like column names,
// in first-seen order.
func queryColumns(query, table string) []string {
	query = quotedRe.ReplaceAllString(query, " ")
	var out []string
	seen := map[string]bool{}
	for _, w := range wordRe.FindAllString(query, -1) {
		w = strings.ToLower(w)
		if sqlWords[w] || w == table || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Singular returns a best-effort singular form of a plural table name.
func Singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "sses"), strings.HasSuffix(name, "xes"), strings.HasSuffix(name, "ches"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "ss"), strings.HasSuffix(name, "us"):
		return name
	case strings.HasSuffix(name, "s") && len(name) > 1:
		return name[:len(name)-1]
	}
	return name
}

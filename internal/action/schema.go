package action

import (
	"fmt"
	"strings"
)

// columnType infers a column type from its name, or "" when nothing fits.
func columnType(name string) string {
	switch {
	case name == "id" || strings.HasSuffix(name, "_id"):
		return "BIGINT"
	case strings.HasSuffix(name, "_at") || strings.Contains(name, "date") || strings.Contains(name, "time"):
		return "TIMESTAMP"
	case name == "email" || name == "name" || name == "status" || name == "title" ||
		strings.HasSuffix(name, "_name") || strings.HasSuffix(name, "_email") || name == "type" || name == "slug":
		return "VARCHAR(255)"
	case name == "amount" || name == "price" || name == "total" ||
		strings.HasSuffix(name, "_amount") || strings.HasSuffix(name, "_price") || strings.HasSuffix(name, "_total"):
		return "DECIMAL(12,2)"
	case name == "quantity" || name == "count" || strings.HasSuffix(name, "_count"):
		return "INT"
	case strings.HasPrefix(name, "is_") || strings.HasPrefix(name, "has_"):
		return "BOOLEAN"
	case name == "description" || name == "body" || name == "content" || name == "notes":
		return "TEXT"
	case name == "data" || name == "payload" || name == "metadata":
		return "JSON"
	}
	return ""
}

// entityColumns are added for well-known entities, keyed by singular name.
var entityColumns = map[string][]string{
	"order":   {"user_id", "status", "total"},
	"user":    {"email", "name", "status"},
	"product": {"name", "price"},
	"session": {"user_id", "expires_at"},
	"payment": {"order_id", "amount", "status"},
	"item":    {"name", "quantity", "price"},
	"event":   {"type", "payload"},
	"log":     {"level", "message"},
}

// InferSchema builds a table descriptor for table from naming heuristics
// and the columns referenced by the failed query.
func InferSchema(table, query string) *SchemaDescriptor {
	s := &SchemaDescriptor{
		Table:       table,
		PrimaryKey:  "id",
		IfNotExists: true,
	}
	add := func(name, typ string) {
		for _, c := range s.Columns {
			if c.Name == name {
				return
			}
		}
		col := Column{Name: name, Type: typ, Nullable: true}
		switch name {
		case "id":
			col.Nullable = false
		case "created_at", "updated_at":
			col.Nullable = false
			col.Default = "CURRENT_TIMESTAMP"
		}
		s.Columns = append(s.Columns, col)
	}

	add("id", "BIGINT")
	for _, name := range entityColumns[Singular(table)] {
		typ := columnType(name)
		if typ == "" {
			typ = "VARCHAR(255)"
		}
		add(name, typ)
	}
	for _, name := range queryColumns(query, table) {
		if !ValidIdentifier(name) {
			continue
		}
		if typ := columnType(name); typ != "" {
			add(name, typ)
		}
	}
	add("created_at", "TIMESTAMP")

	for _, c := range s.Columns {
		if c.Name != "id" && strings.HasSuffix(c.Name, "_id") {
			s.Indexes = append(s.Indexes, Index{Name: "idx_" + c.Name, Columns: []string{c.Name}})
		}
	}
	s.Indexes = append(s.Indexes, Index{Name: "idx_created_at", Columns: []string{"created_at"}})

	s.Verification = []string{fmt.Sprintf("SHOW TABLES LIKE '%s'", table)}
	return s
}

// ConfirmRollback attaches the DROP TABLE rollback.
func (s *SchemaDescriptor) ConfirmRollback() {
	s.Rollback = []string{fmt.Sprintf("DROP TABLE IF EXISTS %s", s.Table)}
	s.Confirmed = true
}

// DDL renders the descriptor as a MySQL CREATE TABLE statement.
func (s *SchemaDescriptor) DDL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	if s.IfNotExists {
		b.WriteString("IF NOT EXISTS ")
	}
	b.WriteString(s.Table)
	b.WriteString(" (\n")
	for _, c := range s.Columns {
		fmt.Fprintf(&b, "  %s %s", c.Name, c.Type)
		if !c.Nullable {
			b.WriteString(" NOT NULL")
		}
		if c.Name == s.PrimaryKey && c.Type == "BIGINT" {
			b.WriteString(" AUTO_INCREMENT")
		}
		if c.Default != "" {
			b.WriteString(" DEFAULT " + c.Default)
		}
		b.WriteString(",\n")
	}
	fmt.Fprintf(&b, "  PRIMARY KEY (%s)", s.PrimaryKey)
	for _, idx := range s.Indexes {
		fmt.Fprintf(&b, ",\n  INDEX %s (%s)", idx.Name, strings.Join(idx.Columns, ", "))
	}
	b.WriteString("\n)")
	return b.String()
}

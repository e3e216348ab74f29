// Package knowledge holds per-kind operator guidance: diagnostics,
// remediation and prevention steps. The built-in base is embedded YAML; a
// custom base can be parsed from any YAML document of the same shape.
package knowledge

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

//go:embed kinds.yaml
var builtin []byte

// placeholderTable is substituted when no table name is known.
const placeholderTable = "your_table"

// Entry is the guidance for one error kind.
type Entry struct {
	Summary     string   `yaml:"summary"`
	RootCause   string   `yaml:"root_cause"`
	Diagnostics []string `yaml:"diagnostics"`
	Remediation []string `yaml:"remediation"`
	Prevention  []string `yaml:"prevention"`
	Escalate    bool     `yaml:"escalate"`
}

type document struct {
	Version int              `yaml:"version"`
	Kinds   map[string]Entry `yaml:"kinds"`
	Default Entry            `yaml:"default"`
}

// Base maps error kinds to guidance. Its content can be swapped
// atomically with Replace; each lookup sees one consistent document.
type Base struct {
	cur atomic.Pointer[content]
}

type content struct {
	kinds map[string]Entry
	def   Entry
}

func (c *content) lookup(kind string) (Entry, bool) {
	if e, ok := c.kinds[kind]; ok {
		return e, true
	}
	return c.def, false
}

// Builtin parses the embedded knowledge base.
func Builtin() (*Base, error) {
	return Parse(builtin)
}

// MustBuiltin is Builtin that panics; the embedded document is covered by
// tests.
func MustBuiltin() *Base {
	b, err := Builtin()
	if err != nil {
		panic(err)
	}
	return b
}

// Parse reads a knowledge base document.
func Parse(data []byte) (*Base, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse knowledge base: %w", err)
	}
	if doc.Version != 1 {
		return nil, fmt.Errorf("unsupported knowledge base version %d", doc.Version)
	}
	if doc.Default.Summary == "" {
		return nil, errors.New("knowledge base needs a default entry")
	}
	kinds := make(map[string]Entry, len(doc.Kinds))
	for k, e := range doc.Kinds {
		kinds[strings.ToUpper(k)] = e
	}
	b := &Base{}
	b.cur.Store(&content{kinds: kinds, def: doc.Default})
	return b, nil
}

// LoadFile parses the knowledge base document at path.
func LoadFile(path string) (*Base, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge base: %w", err)
	}
	return Parse(data)
}

// Replace swaps in the content of other.
func (b *Base) Replace(other *Base) {
	b.cur.Store(other.cur.Load())
}

// Lookup returns the entry for kind, or the default entry.
func (b *Base) Lookup(kind string) Entry {
	e, _ := b.cur.Load().lookup(kind)
	return e
}

// Has reports whether kind has a dedicated entry.
func (b *Base) Has(kind string) bool {
	_, ok := b.cur.Load().lookup(kind)
	return ok
}

// ForTable returns a copy of e with {{.Table}} placeholders filled in.
func (e Entry) ForTable(table string) Entry {
	if table == "" {
		table = placeholderTable
	}
	r := strings.NewReplacer("{{.Table}}", table)
	fill := func(in []string) []string {
		out := make([]string, len(in))
		for i, s := range in {
			out[i] = r.Replace(s)
		}
		return out
	}
	e.Diagnostics = fill(e.Diagnostics)
	e.Remediation = fill(e.Remediation)
	e.Prevention = fill(e.Prevention)
	return e
}

// Guidance renders an entry as a compact plain-text block for prompts.
func (e Entry) Guidance() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nLikely cause: %s\n", e.Summary, e.RootCause)
	writeList(&b, "Known remediation", e.Remediation)
	return strings.TrimRight(b.String(), "\n")
}

// Fallback renders the emergency explanation used when no advisory text is
// available. message should already be scrubbed.
func (b *Base) Fallback(kind, message, table string) string {
	e, known := b.cur.Load().lookup(kind)
	e = e.ForTable(table)

	var sb strings.Builder
	fmt.Fprintf(&sb, "Emergency resolution for %s\n\n", kind)
	if !known && message != "" {
		fmt.Fprintf(&sb, "Error detected: %s\n\n", message)
	}
	fmt.Fprintf(&sb, "Root cause: %s\n", e.RootCause)
	writeList(&sb, "Immediate diagnostics", e.Diagnostics)
	writeList(&sb, "Resolution", e.Remediation)
	writeList(&sb, "Prevention", e.Prevention)
	return strings.TrimRight(sb.String(), "\n")
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}

// Package schema builds the in-memory schema model for a verification
// call: table definitions, foreign-key edges, the FK-respecting generation
// order, and the filter literals extracted from the query under test.
package schema

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"sqlverify/internal/domain"
)

// fileSchema is the YAML wire form of a schema description file.
type fileSchema struct {
	Tables []fileTable `yaml:"tables"`
}

type fileTable struct {
	Name        string    `yaml:"name"`
	RowCount    int       `yaml:"row_count"`
	PrimaryKey  string    `yaml:"primary_key"`
	Columns     []fileCol `yaml:"columns"`
	ForeignKeys []fileFK  `yaml:"foreign_keys"`
}

type fileCol struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type fileFK struct {
	Column    string `yaml:"column"`
	RefTable  string `yaml:"ref_table"`
	RefColumn string `yaml:"ref_column"`
}

// LoadFile reads a YAML schema description file into a schema model.
func LoadFile(path string) (*domain.Schema, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		return nil, fmt.Errorf("read schema file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML schema bytes and validates column types and key
// references.
func Parse(data []byte) (*domain.Schema, error) {
	var f fileSchema
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse schema yaml: %w", err)
	}
	if len(f.Tables) == 0 {
		return nil, fmt.Errorf("schema defines no tables")
	}

	sch := &domain.Schema{}
	for _, ft := range f.Tables {
		t := &domain.TableSchema{
			Name:       ft.Name,
			PrimaryKey: ft.PrimaryKey,
			RowCount:   ft.RowCount,
		}
		for _, c := range ft.Columns {
			ct := domain.ColumnType(strings.ToLower(c.Type))
			if !ct.Valid() {
				return nil, fmt.Errorf("table %s: column %s has unknown type %q", ft.Name, c.Name, c.Type)
			}
			t.Columns = append(t.Columns, domain.Column{Name: c.Name, Type: ct})
		}
		for _, fk := range ft.ForeignKeys {
			t.ForeignKeys = append(t.ForeignKeys, domain.ForeignKey{
				Column:    fk.Column,
				RefTable:  fk.RefTable,
				RefColumn: fk.RefColumn,
			})
		}
		sch.Tables = append(sch.Tables, t)
	}

	for _, t := range sch.Tables {
		for _, fk := range t.ForeignKeys {
			ref, ok := sch.Table(fk.RefTable)
			if !ok {
				return nil, fmt.Errorf("table %s: foreign key references unknown table %q", t.Name, fk.RefTable)
			}
			if _, ok := ref.Column(fk.RefColumn); !ok {
				return nil, fmt.Errorf("table %s: foreign key references unknown column %s.%s", t.Name, fk.RefTable, fk.RefColumn)
			}
			if _, ok := t.Column(fk.Column); !ok {
				return nil, fmt.Errorf("table %s: foreign key on unknown local column %q", t.Name, fk.Column)
			}
		}
	}
	return sch, nil
}

// GenerationOrder topologically sorts the tables so every table appears
// after all tables it has a foreign key into. A reference cycle is an
// error: there is no valid population order for it.
func GenerationOrder(sch *domain.Schema) (domain.GenerationOrder, error) {
	names := make([]string, 0, len(sch.Tables))
	indegree := make(map[string]int, len(sch.Tables))
	dependents := make(map[string][]string, len(sch.Tables))

	for _, t := range sch.Tables {
		names = append(names, t.Name)
		indegree[t.Name] = 0
	}
	sort.Strings(names)

	for _, t := range sch.Tables {
		seen := make(map[string]bool)
		for _, fk := range t.ForeignKeys {
			if fk.RefTable == t.Name || seen[fk.RefTable] {
				continue // self-references don't order tables
			}
			seen[fk.RefTable] = true
			indegree[t.Name]++
			dependents[fk.RefTable] = append(dependents[fk.RefTable], t.Name)
		}
	}

	var ready []string
	for _, name := range names {
		if indegree[name] == 0 {
			ready = append(ready, name)
		}
	}

	order := make(domain.GenerationOrder, 0, len(names))
	for len(ready) > 0 {
		sort.Strings(ready)
		name := ready[0]
		ready = ready[1:]
		order = append(order, name)
		for _, dep := range dependents[name] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) != len(names) {
		var stuck []string
		for name, d := range indegree {
			if d > 0 {
				stuck = append(stuck, name)
			}
		}
		sort.Strings(stuck)
		return nil, fmt.Errorf("foreign key cycle involving tables: %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

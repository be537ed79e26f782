package compiler

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/schema"
)

// versionsFile is the YAML form of a list of schema versions.
type versionsFile struct {
	Versions []versionDecl `yaml:"versions"`
}

type versionDecl struct {
	Version int64       `yaml:"version"`
	Tables  []tableDecl `yaml:"tables"`
}

type tableDecl struct {
	Name    string       `yaml:"name"`
	Columns []columnDecl `yaml:"columns"`
	Unique  [][]string   `yaml:"unique,omitempty"`
}

type columnDecl struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type,omitempty"`
	Nullable   bool   `yaml:"nullable,omitempty"`
	References string `yaml:"references,omitempty"`
}

// ParseYAML parses schema versions declared as:
//
//	versions:
//	  - version: 1
//	    tables:
//	      - name: book
//	        columns:
//	          - {name: title, type: TEXT}
//	          - {name: author, references: author}
//	        unique: [[title, author]]
//
// Unknown fields are rejected. The result is sorted by version.
func ParseYAML(data []byte) ([]*schema.Schema, error) {
	var f versionsFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(f.Versions) == 0 {
		return nil, &CompileError{Field: "versions", Message: "no schema versions declared"}
	}

	out := make([]*schema.Schema, 0, len(f.Versions))
	for _, vd := range f.Versions {
		s := schema.New(vd.Version)
		for _, td := range vd.Tables {
			t := &schema.Table{Name: td.Name}
			for _, cd := range td.Columns {
				col := schema.Column{Name: cd.Name, Type: strings.ToUpper(cd.Type), Nullable: cd.Nullable}
				if cd.References != "" {
					col.ForeignKey = &schema.ForeignKey{Table: cd.References, Column: schema.IDColumn}
					if col.Type == "" {
						col.Type = ir.SQLInteger
					}
				}
				if col.Type == "" {
					return nil, &CompileError{
						Field:   fmt.Sprintf("version.%d.%s.%s.type", vd.Version, td.Name, cd.Name),
						Message: "type is required unless references is set",
					}
				}
				t.Columns = append(t.Columns, col)
			}
			for _, cols := range td.Unique {
				t.Uniques = append(t.Uniques, schema.Unique{Columns: cols})
			}
			s.Tables = append(s.Tables, t)
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// LoadYAML reads and parses a YAML schema file.
func LoadYAML(path string) ([]*schema.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	return ParseYAML(data)
}

// Load reads schema versions from path: .yaml and .yml files as YAML,
// anything else (a .cue file or a directory) as CUE. The versions are
// validated before they are returned.
func Load(path string) ([]*schema.Schema, error) {
	var (
		versions []*schema.Schema
		err      error
	)
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		versions, err = LoadYAML(path)
	default:
		versions, err = LoadCUE(path)
	}
	if err != nil {
		return nil, err
	}
	if errs := Validate(versions); len(errs) > 0 {
		return nil, errs
	}
	return versions, nil
}

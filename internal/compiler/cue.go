package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/roach88/relq/internal/ir"
	"github.com/roach88/relq/internal/schema"
)

// CompileVersions parses every schema version declared under "schema" in
// a CUE value:
//
//	schema: v1: {
//		version: 1
//		table: author: column: name: "TEXT"
//		table: book: {
//			column: title: "TEXT"
//			column: author: references: "author"
//			column: note: {type: "TEXT", nullable: true}
//			unique: [["title", "author"]]
//		}
//	}
//
// A column is either a storage class string (NOT NULL) or a struct with
// type, nullable and references. A column with references defaults to
// INTEGER. Tables and columns keep their declaration order. The result
// is sorted by version.
func CompileVersions(v cue.Value) ([]*schema.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	root := v.LookupPath(cue.ParsePath("schema"))
	if !root.Exists() {
		return nil, &CompileError{Field: "schema", Message: "no schema versions declared", Pos: v.Pos()}
	}
	iter, err := root.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var out []*schema.Schema
	for iter.Next() {
		s, err := CompileSchema(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// CompileSchema parses one schema version.
func CompileSchema(v cue.Value) (*schema.Schema, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	versionVal := v.LookupPath(cue.ParsePath("version"))
	if !versionVal.Exists() {
		return nil, &CompileError{Field: "version", Message: "version is required", Pos: v.Pos()}
	}
	version, err := versionVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	s := schema.New(version)

	tablesVal := v.LookupPath(cue.ParsePath("table"))
	if !tablesVal.Exists() {
		return s, nil
	}
	iter, err := tablesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		t, err := compileTable(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, t)
	}
	return s, nil
}

func compileTable(name string, v cue.Value) (*schema.Table, error) {
	t := &schema.Table{Name: name}

	colsVal := v.LookupPath(cue.ParsePath("column"))
	if colsVal.Exists() {
		iter, err := colsVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			col, err := compileColumn(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			t.Columns = append(t.Columns, col)
		}
	}

	uniqueVal := v.LookupPath(cue.ParsePath("unique"))
	if uniqueVal.Exists() {
		var uniques [][]string
		if err := uniqueVal.Decode(&uniques); err != nil {
			return nil, &CompileError{
				Field:   "unique",
				Message: "must be a list of column name lists",
				Pos:     uniqueVal.Pos(),
			}
		}
		for _, cols := range uniques {
			t.Uniques = append(t.Uniques, schema.Unique{Columns: cols})
		}
	}
	return t, nil
}

func compileColumn(name string, v cue.Value) (schema.Column, error) {
	col := schema.Column{Name: name}

	// Shorthand: the storage class alone.
	if typ, err := v.String(); err == nil {
		col.Type = strings.ToUpper(typ)
		return col, nil
	}
	if v.IncompleteKind() != cue.StructKind {
		return col, &CompileError{
			Field:   "column." + name,
			Message: "must be a storage class string or a struct",
			Pos:     v.Pos(),
		}
	}

	if ref := v.LookupPath(cue.ParsePath("references")); ref.Exists() {
		table, err := ref.String()
		if err != nil {
			return col, formatCUEError(err)
		}
		col.ForeignKey = &schema.ForeignKey{Table: table, Column: schema.IDColumn}
		col.Type = ir.SQLInteger
	}
	if typ := v.LookupPath(cue.ParsePath("type")); typ.Exists() {
		s, err := typ.String()
		if err != nil {
			return col, formatCUEError(err)
		}
		col.Type = strings.ToUpper(s)
	}
	if col.Type == "" {
		return col, &CompileError{
			Field:   "column." + name + ".type",
			Message: "type is required unless references is set",
			Pos:     v.Pos(),
		}
	}
	if nullable := v.LookupPath(cue.ParsePath("nullable")); nullable.Exists() {
		b, err := nullable.Bool()
		if err != nil {
			return col, formatCUEError(err)
		}
		col.Nullable = b
	}
	return col, nil
}

// LoadCUE compiles the schema versions in a .cue file, or in every .cue
// file of a directory unified into one value.
func LoadCUE(path string) ([]*schema.Schema, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("schema file: %w", err)
	}
	files := []string{path}
	if info.IsDir() {
		files, err = FindCUEFiles(path)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no CUE files found in %s", path)
		}
	}

	ctx := cuecontext.New()
	value := ctx.CompileString("{}")
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f, err)
		}
		v := ctx.CompileBytes(data, cue.Filename(f))
		if err := v.Err(); err != nil {
			return nil, formatCUEError(err)
		}
		value = value.Unify(v)
	}
	return CompileVersions(value)
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

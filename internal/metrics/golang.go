package metrics

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
)

// analyzeGo classifies top-level declarations and walks the whole file for
// branch points. It returns nil when the source has syntax errors.
func analyzeGo(source []byte) *FileMetrics {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, parser.SkipObjectResolution)
	if err != nil {
		return nil
	}

	fm := &FileMetrics{}
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.ImportSpec:
					fm.ImportCount++
					if isModuleImport(s) {
						fm.DependencyCount++
					}
				case *ast.TypeSpec:
					fm.ClassCount++
					if ast.IsExported(s.Name.Name) {
						fm.PublicAPISurface++
					}
				}
			}
		case *ast.FuncDecl:
			fm.FunctionCount++
			if ast.IsExported(d.Name.Name) {
				fm.PublicAPISurface++
			}
		}
	}

	fm.ComplexityAvg = float64(goComplexity(file))
	return fm
}

// isModuleImport reports whether the import path is hosted (first element has
// a dot), which excludes the standard library.
func isModuleImport(s *ast.ImportSpec) bool {
	p, err := strconv.Unquote(s.Path.Value)
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(p, "/")
	return strings.Contains(first, ".")
}

func goComplexity(file *ast.File) int {
	complexity := 1
	ast.Inspect(file, func(n ast.Node) bool {
		switch x := n.(type) {
		case *ast.IfStmt, *ast.ForStmt, *ast.RangeStmt:
			complexity++
		case *ast.CaseClause:
			if x.List != nil {
				complexity++
			}
		case *ast.CommClause:
			if x.Comm != nil {
				complexity++
			}
		case *ast.BinaryExpr:
			if x.Op == token.LAND || x.Op == token.LOR {
				complexity++
			}
		}
		return true
	})
	return complexity
}

//go:build cgo

package metrics

import (
	"context"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

const pythonAvailable = true

// pythonBranchNodes each add one to cyclomatic complexity. boolean_operator is
// binary in the grammar, so a chain of N operands yields N-1 nodes.
var pythonBranchNodes = map[string]bool{
	"if_statement":     true,
	"elif_clause":      true,
	"for_statement":    true,
	"while_statement":  true,
	"except_clause":    true,
	"with_statement":   true,
	"boolean_operator": true,
}

// analyzePython parses with tree-sitter. Sources containing syntax errors
// return nil. A parser is created per call since sitter.Parser is not safe
// for concurrent use.
func analyzePython(ctx context.Context, source []byte) (*FileMetrics, error) {
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	defer tree.Close()

	root := tree.RootNode()
	if root == nil || root.HasError() {
		return nil, nil
	}

	fm := &FileMetrics{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		classifyPythonStatement(root.NamedChild(i), source, fm)
	}
	fm.ComplexityAvg = float64(pythonComplexity(root))
	return fm, nil
}

func classifyPythonStatement(node *sitter.Node, source []byte, fm *FileMetrics) {
	switch node.Type() {
	case "import_statement":
		fm.ImportCount++
	case "import_from_statement":
		fm.ImportCount++
		if mod := node.ChildByFieldName("module_name"); mod != nil && mod.Type() != "relative_import" {
			fm.DependencyCount++
		}
	case "future_import_statement":
		fm.ImportCount++
		fm.DependencyCount++
	case "class_definition":
		fm.ClassCount++
		countPublic(node, source, fm)
	case "function_definition":
		fm.FunctionCount++
		countPublic(node, source, fm)
	case "decorated_definition":
		if def := node.ChildByFieldName("definition"); def != nil {
			classifyPythonStatement(def, source, fm)
		}
	}
}

func countPublic(node *sitter.Node, source []byte, fm *FileMetrics) {
	name := node.ChildByFieldName("name")
	if name == nil {
		return
	}
	if !strings.HasPrefix(name.Content(source), "_") {
		fm.PublicAPISurface++
	}
}

func pythonComplexity(root *sitter.Node) int {
	complexity := 1
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if pythonBranchNodes[n.Type()] {
			complexity++
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i))
		}
	}
	walk(root)
	return complexity
}

// Package metrics extracts structural counts from source files and sums them
// across a project tree.
package metrics

import (
	"math"
	"strings"
)

// Language represents a supported programming language.
type Language string

const (
	LangGo     Language = "go"
	LangPython Language = "python"
)

// MaxFileSizeBytes is the largest file AnalyzeFile will read.
const MaxFileSizeBytes int64 = 10 * 1024 * 1024

// DefaultMaxFiles bounds AggregateMetrics when no ceiling is given.
const DefaultMaxFiles = 1000

// DefaultSkipDirs are directory names never descended into. Hidden
// directories are skipped as well.
var DefaultSkipDirs = []string{
	"__pycache__", "node_modules", "venv", "env", "build",
	"dist", "vendor", "target", "site-packages",
}

// LanguageFromExtension maps a file extension (with dot) to a Language.
func LanguageFromExtension(ext string) (Language, bool) {
	switch strings.ToLower(ext) {
	case ".go":
		return LangGo, true
	case ".py", ".pyi":
		return LangPython, true
	default:
		return "", false
	}
}

// FileMetrics holds the structural counts of one file.
type FileMetrics struct {
	ImportCount      int     `json:"import_count" yaml:"import_count"`
	ClassCount       int     `json:"class_count" yaml:"class_count"`
	FunctionCount    int     `json:"function_count" yaml:"function_count"`
	DependencyCount  int     `json:"dependency_count" yaml:"dependency_count"`
	ComplexityAvg    float64 `json:"complexity_avg" yaml:"complexity_avg"`
	PublicAPISurface int     `json:"public_api_surface" yaml:"public_api_surface"`
}

// ProjectMetrics is the sum of FileMetrics over a tree. ComplexityAvg is the
// mean per-file complexity.
type ProjectMetrics struct {
	FileMetrics `yaml:",inline"`
	FileCount   int `json:"file_count" yaml:"file_count"`
}

// Value returns the named metric as a float, for weighted comparisons.
func (p ProjectMetrics) Value(name string) float64 {
	switch name {
	case "import_count":
		return float64(p.ImportCount)
	case "class_count":
		return float64(p.ClassCount)
	case "function_count":
		return float64(p.FunctionCount)
	case "dependency_count":
		return float64(p.DependencyCount)
	case "complexity_avg":
		return p.ComplexityAvg
	case "public_api_surface":
		return float64(p.PublicAPISurface)
	case "file_count":
		return float64(p.FileCount)
	default:
		return 0
	}
}

// Round rounds v to the given number of decimal places.
func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

package metrics

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
)

// Options bounds an Analyzer. Zero values select the defaults.
type Options struct {
	MaxFiles         int
	MaxFileSizeBytes int64
	SkipDirs         []string
	Logger           *slog.Logger
}

// Analyzer computes FileMetrics for single files and ProjectMetrics for trees.
// It is safe for concurrent use.
type Analyzer struct {
	maxFiles    int
	maxFileSize int64
	skipDirs    map[string]bool
	logger      *slog.Logger
}

// NewAnalyzer creates an analyzer from opts.
func NewAnalyzer(opts Options) *Analyzer {
	a := &Analyzer{
		maxFiles:    opts.MaxFiles,
		maxFileSize: opts.MaxFileSizeBytes,
		skipDirs:    make(map[string]bool),
		logger:      opts.Logger,
	}
	if a.maxFiles <= 0 {
		a.maxFiles = DefaultMaxFiles
	}
	if a.maxFileSize <= 0 {
		a.maxFileSize = MaxFileSizeBytes
	}
	skip := opts.SkipDirs
	if skip == nil {
		skip = DefaultSkipDirs
	}
	for _, d := range skip {
		a.skipDirs[d] = true
	}
	if a.logger == nil {
		a.logger = slog.New(slog.DiscardHandler)
	}
	return a
}

// IsAvailable reports whether lang can be parsed in this build.
func IsAvailable(lang Language) bool {
	switch lang {
	case LangGo:
		return true
	case LangPython:
		return pythonAvailable
	default:
		return false
	}
}

// AnalyzeFile analyzes one file with default limits.
func AnalyzeFile(ctx context.Context, path string) (*FileMetrics, error) {
	return NewAnalyzer(Options{}).AnalyzeFile(ctx, path)
}

// AnalyzeFile returns nil, nil for files that are too large, unreadable,
// unsupported or unparseable. Only context cancellation is an error.
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*FileMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lang, ok := LanguageFromExtension(filepath.Ext(path))
	if !ok || !IsAvailable(lang) {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		a.logger.Debug("Skipping unreadable file", "path", path, "error", err)
		return nil, nil
	}
	if info.Size() > a.maxFileSize {
		a.logger.Debug("Skipping oversized file", "path", path, "size", info.Size())
		return nil, nil
	}

	source, err := os.ReadFile(path)
	if err != nil {
		a.logger.Debug("Skipping unreadable file", "path", path, "error", err)
		return nil, nil
	}

	fm, err := a.AnalyzeSource(ctx, source, lang)
	if err != nil {
		return nil, err
	}
	if fm == nil {
		a.logger.Debug("Skipping unparseable file", "path", path)
	}
	return fm, nil
}

// AnalyzeSource analyzes in-memory source. It returns nil, nil when the source
// does not parse.
func (a *Analyzer) AnalyzeSource(ctx context.Context, source []byte, lang Language) (*FileMetrics, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch lang {
	case LangGo:
		return analyzeGo(source), nil
	case LangPython:
		return analyzePython(ctx, source)
	default:
		return nil, nil
	}
}

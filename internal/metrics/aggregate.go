package metrics

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// AggregateMetrics sums metrics over at most maxFiles analyzable files under
// projectRoot, using default limits otherwise.
func AggregateMetrics(ctx context.Context, projectRoot string, maxFiles int) (*ProjectMetrics, error) {
	return NewAnalyzer(Options{MaxFiles: maxFiles}).Aggregate(ctx, projectRoot)
}

// Aggregate walks projectRoot in lexical path order and sums the metrics of
// the first maxFiles files that analyze successfully. Skipped files do not
// count toward the ceiling.
func (a *Analyzer) Aggregate(ctx context.Context, projectRoot string) (*ProjectMetrics, error) {
	candidates, err := a.collectFiles(ctx, projectRoot)
	if err != nil {
		return nil, err
	}

	pm := &ProjectMetrics{}
	complexitySum := 0.0
	for _, path := range candidates {
		if pm.FileCount >= a.maxFiles {
			break
		}
		fm, err := a.AnalyzeFile(ctx, path)
		if err != nil {
			return nil, err
		}
		if fm == nil {
			continue
		}
		pm.ImportCount += fm.ImportCount
		pm.ClassCount += fm.ClassCount
		pm.FunctionCount += fm.FunctionCount
		pm.DependencyCount += fm.DependencyCount
		pm.PublicAPISurface += fm.PublicAPISurface
		complexitySum += fm.ComplexityAvg
		pm.FileCount++
	}

	if pm.FileCount > 0 {
		pm.ComplexityAvg = Round(complexitySum/float64(pm.FileCount), 2)
	}

	a.logger.Debug("Aggregated project metrics",
		"root", projectRoot,
		"candidates", len(candidates),
		"files", pm.FileCount,
	)
	return pm, nil
}

// collectFiles lists files with an available parser, sorted by full path.
func (a *Analyzer) collectFiles(ctx context.Context, root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			a.logger.Debug("Skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && a.shouldSkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if lang, ok := LanguageFromExtension(filepath.Ext(path)); ok && IsAvailable(lang) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (a *Analyzer) shouldSkipDir(name string) bool {
	return strings.HasPrefix(name, ".") || a.skipDirs[name]
}

// ShouldSkipDir reports whether the default walk ignores a directory name.
func ShouldSkipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, d := range DefaultSkipDirs {
		if d == name {
			return true
		}
	}
	return false
}

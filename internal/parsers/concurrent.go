package parsers

import (
	"context"

	"golang.org/x/sync/errgroup"

	"statement-reconciler/internal/models"
	"statement-reconciler/pkg/logger"
)

// FileResult holds what was read from one file
type FileResult struct {
	FilePath     string
	Transactions []*models.Transaction
	Stats        *ParseStats
}

// MultiFileResult holds the transactions of several files in the order the
// files were given, and the per-file results in the same order
type MultiFileResult struct {
	Transactions []*models.Transaction
	Files        []*FileResult
}

// RejectedRows returns the number of rejected rows across all files
func (r *MultiFileResult) RejectedRows() int {
	total := 0
	for _, file := range r.Files {
		if file.Stats != nil {
			total += file.Stats.ErrorCount
		}
	}
	return total
}

// ConcurrentParser reads several files at once with a shared TransactionParser
type ConcurrentParser struct {
	parser         *TransactionParser
	maxConcurrency int
	logger         logger.Logger
}

// NewConcurrentParser creates a concurrent parser bounded by the parser's
// MaxConcurrentFiles setting
func NewConcurrentParser(parser *TransactionParser) *ConcurrentParser {
	maxConcurrency := parser.config.MaxConcurrentFiles
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}

	return &ConcurrentParser{
		parser:         parser,
		maxConcurrency: maxConcurrency,
		logger:         logger.GetGlobalLogger().WithComponent("concurrent_parser"),
	}
}

// ParseFiles reads every file concurrently. The first file that fails as a
// whole cancels the others and its error is returned. Row positions, and so
// transaction ids, run on from one file to the next in the order given.
func (cp *ConcurrentParser) ParseFiles(ctx context.Context, paths []string) (*MultiFileResult, error) {
	op := logger.NewOperationLogger("parse_files", cp.logger).WithField("files", len(paths))

	results := make([]*FileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cp.maxConcurrency)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			transactions, stats, err := cp.parser.ParseFile(gctx, path)
			if err != nil {
				return err
			}
			results[i] = &FileResult{
				FilePath:     path,
				Transactions: transactions,
				Stats:        stats,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		op.Error(err, "Failed to read statement files")
		return nil, err
	}

	total := 0
	for _, result := range results {
		total += len(result.Transactions)
	}

	merged := &MultiFileResult{
		Transactions: make([]*models.Transaction, 0, total),
		Files:        results,
	}
	// Positions continue across files so ids stay unique when several files
	// carry the same account
	offset := 0
	for _, result := range results {
		if offset > 0 {
			for _, tx := range result.Transactions {
				tx.Offset(offset)
			}
		}
		merged.Transactions = append(merged.Transactions, result.Transactions...)
		offset += result.Stats.RecordsParsed
	}

	op.Success("Statement files read", logger.Fields{
		"transactions":  total,
		"rejected_rows": merged.RejectedRows(),
	})
	return merged, nil
}

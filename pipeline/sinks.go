package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// Sinks opens one output writer per crawl category in the configured
// format. Files are named after the category with unsafe characters
// replaced.
type Sinks struct {
	cfg   *config.Config
	store *SQLiteStore
}

// OpenSinks prepares the outputs for cfg.OutputFormat. The sqlite format
// opens the shared database up front.
func OpenSinks(cfg *config.Config) (*Sinks, error) {
	s := &Sinks{cfg: cfg}
	if cfg.OutputFormat == config.FormatSQLite {
		store, err := OpenSQLiteStore(cfg.DatabasePath())
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s, nil
}

// CSVPath is the tabular file for a category.
func (s *Sinks) CSVPath(category string) string {
	return filepath.Join(s.cfg.CSVDir(), parser.SafeName(category)+".csv")
}

// JSONPath is the JSONL file for a category.
func (s *Sinks) JSONPath(category string) string {
	return filepath.Join(s.cfg.JSONDir(), parser.SafeName(category)+".jsonl")
}

// Store returns the shared database, or nil for file formats.
func (s *Sinks) Store() *SQLiteStore {
	return s.store
}

// ForCategory opens the writer for one category.
func (s *Sinks) ForCategory(target models.CrawlTarget) (OutputWriter, error) {
	switch s.cfg.OutputFormat {
	case config.FormatCSV:
		return NewCSVWriter(s.CSVPath(target.Name))
	case config.FormatJSON:
		return NewJSONWriter(s.JSONPath(target.Name))
	case config.FormatDual:
		return NewDualWriter(s.CSVPath(target.Name), s.JSONPath(target.Name))
	case config.FormatSQLite:
		if s.store == nil {
			return nil, fmt.Errorf("sqlite store not open")
		}
		return s.store.CategoryWriter(target.Name), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", s.cfg.OutputFormat)
	}
}

// Close releases shared resources.
func (s *Sinks) Close() error {
	if s.store != nil {
		return s.store.Close()
	}
	return nil
}

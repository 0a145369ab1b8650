package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// SQLiteStore keeps every category's records in one database file. A book
// listed under several crawl categories is stored once per category.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLiteStore opens or creates the database at dbPath.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db, dbPath: dbPath}

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		product_page_url TEXT NOT NULL,
		upc TEXT,
		title TEXT,
		price_including_tax TEXT,
		price_excluding_tax TEXT,
		number_available INTEGER,
		product_description TEXT,
		category TEXT,
		review_rating INTEGER,
		image_url TEXT,
		crawl_category TEXT NOT NULL,
		position INTEGER NOT NULL,
		crawled_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (crawl_category, product_page_url)
	);

	CREATE INDEX IF NOT EXISTS idx_books_crawl_category ON books(crawl_category, position);
	CREATE INDEX IF NOT EXISTS idx_books_upc ON books(upc);
	CREATE INDEX IF NOT EXISTS idx_books_url ON books(product_page_url);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// InsertBooks upserts books for a crawl category. position numbers the
// first book; the rest follow consecutively.
func (s *SQLiteStore) InsertBooks(ctx context.Context, crawlCategory string, position int, books []*models.Book) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
	INSERT INTO books (product_page_url, upc, title, price_including_tax, price_excluding_tax,
		number_available, product_description, category, review_rating, image_url,
		crawl_category, position)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(crawl_category, product_page_url) DO UPDATE SET
		upc = excluded.upc,
		title = excluded.title,
		price_including_tax = excluded.price_including_tax,
		price_excluding_tax = excluded.price_excluding_tax,
		number_available = excluded.number_available,
		product_description = excluded.product_description,
		category = excluded.category,
		review_rating = excluded.review_rating,
		image_url = excluded.image_url,
		position = excluded.position,
		crawled_at = CURRENT_TIMESTAMP
	`
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, book := range books {
		if _, err := stmt.ExecContext(ctx,
			book.DetailURL, book.UPC, book.Title, book.PriceInclTax, book.PriceExclTax,
			book.AvailableCount, book.Description, book.Category, book.Rating, book.ImageURL,
			crawlCategory, position+i,
		); err != nil {
			return fmt.Errorf("insert %s: %w", book.DetailURL, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// BooksByCategory returns the stored books of a crawl category in crawl
// order.
func (s *SQLiteStore) BooksByCategory(ctx context.Context, crawlCategory string) ([]*models.Book, error) {
	query := `
	SELECT product_page_url, upc, title, price_including_tax, price_excluding_tax,
		number_available, product_description, category, review_rating, image_url
	FROM books
	WHERE crawl_category = ?
	ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, crawlCategory)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	defer rows.Close()

	var books []*models.Book
	for rows.Next() {
		var b models.Book
		if err := rows.Scan(
			&b.DetailURL, &b.UPC, &b.Title, &b.PriceInclTax, &b.PriceExclTax,
			&b.AvailableCount, &b.Description, &b.Category, &b.Rating, &b.ImageURL,
		); err != nil {
			return nil, fmt.Errorf("scan book: %w", err)
		}
		books = append(books, &b)
	}
	return books, rows.Err()
}

// CountBooks returns how many books are stored for a crawl category.
func (s *SQLiteStore) CountBooks(ctx context.Context, crawlCategory string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM books WHERE crawl_category = ?", crawlCategory).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

// CategoryWriter returns an OutputWriter that stores records under
// crawlCategory. Closing it leaves the store open.
func (s *SQLiteStore) CategoryWriter(crawlCategory string) *SQLiteWriter {
	return &SQLiteWriter{store: s, category: crawlCategory}
}

// SQLiteWriter adapts SQLiteStore to OutputWriter for one category.
type SQLiteWriter struct {
	store    *SQLiteStore
	category string
	next     int
	written  int
}

func (w *SQLiteWriter) Write(books []*models.Book) error {
	if err := w.store.InsertBooks(context.Background(), w.category, w.next, books); err != nil {
		return err
	}
	w.next += len(books)
	w.written += len(books)
	return nil
}

func (w *SQLiteWriter) Close() error {
	return nil
}

// Validate checks that every written record is queryable.
func (w *SQLiteWriter) Validate() error {
	n, err := w.store.CountBooks(context.Background(), w.category)
	if err != nil {
		return err
	}
	if n < w.written {
		return fmt.Errorf("sqlite has %d books for %q, wrote %d", n, w.category, w.written)
	}
	return nil
}

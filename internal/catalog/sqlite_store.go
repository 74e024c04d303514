package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/avvvet/naina-chat/internal/models"
)

const sampleLimit = 3

// SQLiteStore implements Store and Writer using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens dsn and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate catalog database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			price REAL NOT NULL DEFAULT 0,
			category TEXT NOT NULL DEFAULT 'Uncategorized',
			tags TEXT NOT NULL DEFAULT '',
			colors TEXT NOT NULL DEFAULT '',
			style TEXT NOT NULL DEFAULT '',
			in_stock INTEGER NOT NULL DEFAULT 1,
			quantity INTEGER NOT NULL DEFAULT 0,
			image_url TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			handle TEXT NOT NULL DEFAULT '',
			synced_at DATETIME
		)`,
		`CREATE INDEX IF NOT EXISTS idx_products_price ON products(in_stock, price)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const productColumns = `id, name, description, price, category, tags, colors, style,
	in_stock, quantity, image_url, url, handle, synced_at`

// FindByKeywordAndPriceRange implements Store.
func (s *SQLiteStore) FindByKeywordAndPriceRange(ctx context.Context, term string, minPrice, maxPrice, offset, limit int) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products
		WHERE in_stock = 1 AND price >= ? AND price <= ?`
	args := []any{minPrice, maxPrice}

	if clause, kwArgs := keywordClause(term); clause != "" {
		query += " AND " + clause
		args = append(args, kwArgs...)
	}

	query += ` ORDER BY price ASC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// keywordClause matches the term, and its singular form, against the text columns
func keywordClause(term string) (string, []any) {
	variants := keywordVariants(term)
	if len(variants) == 0 {
		return "", nil
	}

	var parts []string
	var args []any
	for _, v := range variants {
		pattern := "%" + escapeLike(v) + "%"
		parts = append(parts, `(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(category) LIKE ? ESCAPE '\'
			OR LOWER(description) LIKE ? ESCAPE '\' OR LOWER(tags) LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	return "(" + strings.Join(parts, " OR ") + ")", args
}

func keywordVariants(term string) []string {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return nil
	}
	variants := []string{term}
	if len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
		variants = append(variants, strings.TrimSuffix(term, "s"))
	}
	return variants
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// SummarizeByCategory implements Store.
func (s *SQLiteStore) SummarizeByCategory(ctx context.Context) ([]CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, COUNT(*), MIN(price), MAX(price)
		FROM products
		WHERE in_stock = 1 AND price > 0
		GROUP BY category
		ORDER BY COUNT(*) DESC, category ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize categories: %w", err)
	}

	var summaries []CategorySummary
	index := map[string]int{}
	for rows.Next() {
		var cs CategorySummary
		if err := rows.Scan(&cs.Category, &cs.Count, &cs.MinPrice, &cs.MaxPrice); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category summary: %w", err)
		}
		index[cs.Category] = len(summaries)
		summaries = append(summaries, cs)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	samples, err := s.db.QueryContext(ctx, `
		SELECT category, name, price FROM (
			SELECT category, name, price,
				ROW_NUMBER() OVER (PARTITION BY category ORDER BY price ASC, id ASC) AS rn
			FROM products
			WHERE in_stock = 1 AND price > 0
		) WHERE rn <= ?
		ORDER BY category, rn`, sampleLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to sample categories: %w", err)
	}
	defer samples.Close()

	for samples.Next() {
		var category string
		var sample Sample
		if err := samples.Scan(&category, &sample.Name, &sample.Price); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if i, ok := index[category]; ok {
			summaries[i].Samples = append(summaries[i].Samples, sample)
		}
	}
	return summaries, samples.Err()
}

// UpsertProduct implements Writer.
func (s *SQLiteStore) UpsertProduct(ctx context.Context, p models.Product) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM products WHERE id = ?`, p.ID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check product: %w", err)
	}

	syncedAt := p.SyncedAt
	if syncedAt.IsZero() {
		syncedAt = time.Now().UTC()
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			category = excluded.category,
			tags = excluded.tags,
			colors = excluded.colors,
			style = excluded.style,
			in_stock = excluded.in_stock,
			quantity = excluded.quantity,
			image_url = excluded.image_url,
			url = excluded.url,
			handle = excluded.handle,
			synced_at = excluded.synced_at`,
		p.ID, p.Name, p.Description, p.Price, categoryOrDefault(p.Category),
		strings.Join(p.Tags, ","), strings.Join(p.Colors, ","), p.Style,
		p.InStock, p.Quantity, p.ImageURL, p.URL, p.Handle, syncedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert product %s: %w", p.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit product %s: %w", p.ID, err)
	}
	return exists == 0, nil
}

// Count returns the number of stored products.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (models.Product, error) {
	var (
		p        models.Product
		tags     string
		colors   string
		syncedAt sql.NullTime
	)
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &tags, &colors, &p.Style,
		&p.InStock, &p.Quantity, &p.ImageURL, &p.URL, &p.Handle, &syncedAt)
	if err != nil {
		return p, fmt.Errorf("failed to scan product: %w", err)
	}
	p.Tags = splitList(tags)
	p.Colors = splitList(colors)
	if syncedAt.Valid {
		p.SyncedAt = syncedAt.Time
	}
	return p, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func categoryOrDefault(c string) string {
	if c == "" {
		return "Uncategorized"
	}
	return c
}

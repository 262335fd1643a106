package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Index posts by blog",
		Up: `
			-- Join and range queries filter posts by blog
			CREATE INDEX IF NOT EXISTS idx_posts_blog_id ON posts(blog_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_posts_blog_id;
		`,
	},
	{
		Version: 2,
		Name:    "Unique user emails",
		Up: `
			CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(email);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_users_email;
		`,
	},
	{
		Version: 3,
		Name:    "Add order_products join table",
		Up: `
			CREATE TABLE IF NOT EXISTS order_products (
				order_id INTEGER NOT NULL,
				product_id INTEGER NOT NULL,
				PRIMARY KEY (order_id, product_id),
				FOREIGN KEY (order_id) REFERENCES orders(order_id) ON DELETE CASCADE,
				FOREIGN KEY (product_id) REFERENCES products(product_id) ON DELETE CASCADE
			);
		`,
		Down: `
			DROP TABLE IF EXISTS order_products;
		`,
	},
	{
		Version: 4,
		Name:    "Index orders by user and date",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_orders_user_date ON orders(user_id, order_date DESC);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_orders_user_date;
		`,
	},
}

// InitSchema creates the tables used by the database workloads
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS blogs (
		blog_id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS posts (
		post_id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		blog_id INTEGER NOT NULL,
		FOREIGN KEY (blog_id) REFERENCES blogs(blog_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS tags (
		tag_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		email TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS orders (
		order_id INTEGER PRIMARY KEY AUTOINCREMENT,
		order_date DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		user_id INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS products (
		product_id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		price REAL NOT NULL
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		_, err := db.Exec(migration.Up)
		if err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}

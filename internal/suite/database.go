package suite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/studiowebux/benchkit/internal/migrations"
	"github.com/studiowebux/benchkit/internal/workload"
	"go.uber.org/zap"
)

// Seed sizes the data loaded into a fresh database
type Seed struct {
	Blogs    int
	Posts    int
	Users    int
	Products int
}

// DefaultSeed returns the row counts used by the catalog
func DefaultSeed() Seed {
	return Seed{Blogs: 1_000, Posts: 10_000, Users: 1_000, Products: 100}
}

// Database is a fixture resource holding a migrated, seeded in-memory
// SQLite database. Each Start creates a new database.
type Database struct {
	seed   Seed
	logger *zap.Logger

	mu sync.RWMutex
	db *sql.DB
}

// NewDatabase creates a database fixture resource
func NewDatabase(seed Seed, logger *zap.Logger) *Database {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Database{seed: seed, logger: logger.Named("sqlite")}
}

// Seed returns the row counts the database is loaded with
func (d *Database) Seed() Seed {
	return d.seed
}

// DB returns the open handle, or nil when the fixture is not live
func (d *Database) DB() *sql.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// Start opens, migrates and seeds a new in-memory database
func (d *Database) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db != nil {
		return fmt.Errorf("database already open")
	}

	dsn := fmt.Sprintf("file:benchkit-%s?mode=memory&cache=shared", uuid.NewString())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps the in-memory database alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to open database: %w", err)
	}
	if err := migrations.Run(db); err != nil {
		db.Close()
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	if err := seedDatabase(ctx, db, d.seed); err != nil {
		db.Close()
		return fmt.Errorf("failed to seed database: %w", err)
	}

	d.db = db
	d.logger.Debug("database ready",
		zap.Int("blogs", d.seed.Blogs),
		zap.Int("posts", d.seed.Posts),
		zap.Int("users", d.seed.Users),
		zap.Int("products", d.seed.Products))
	return nil
}

// Stop closes the database, discarding its contents
func (d *Database) Stop(_ context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	err := d.db.Close()
	d.db = nil
	return err
}

func seedDatabase(ctx context.Context, db *sql.DB, seed Seed) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rng := rand.New(rand.NewSource(inputSeed))

	inserts := []struct {
		query string
		count int
		args  func(i int) []any
	}{
		{
			query: "INSERT INTO blogs (url) VALUES (?)",
			count: seed.Blogs,
			args:  func(i int) []any { return []any{fmt.Sprintf("https://blog-%d.example.com", i)} },
		},
		{
			query: "INSERT INTO posts (title, content, blog_id) VALUES (?, ?, ?)",
			count: seed.Posts,
			args: func(i int) []any {
				return []any{fmt.Sprintf("Post %d", i), fmt.Sprintf("Content of post %d", i), rng.Intn(max(seed.Blogs, 1)) + 1}
			},
		},
		{
			query: "INSERT INTO users (name, email) VALUES (?, ?)",
			count: seed.Users,
			args:  func(i int) []any { return []any{fmt.Sprintf("User %d", i), fmt.Sprintf("user%d@example.com", i)} },
		},
		{
			query: "INSERT INTO products (name, price) VALUES (?, ?)",
			count: seed.Products,
			args:  func(i int) []any { return []any{fmt.Sprintf("Product %d", i), float64(rng.Intn(10_000)) / 100} },
		},
	}

	for _, ins := range inserts {
		stmt, err := tx.PrepareContext(ctx, ins.query)
		if err != nil {
			return err
		}
		for i := 1; i <= ins.count; i++ {
			if _, err := stmt.ExecContext(ctx, ins.args(i)...); err != nil {
				stmt.Close()
				return err
			}
		}
		stmt.Close()
	}

	return tx.Commit()
}

type post struct {
	ID      int64
	Title   string
	Content string
	BlogID  int64
}

type dbState struct {
	db     *sql.DB
	rng    *rand.Rand
	posts  int
	params workload.Params
	// highest post id present before the workload started writing
	baseline int64
}

func dbSetup(ctx context.Context, env workload.Env) (workload.State, error) {
	res, err := workload.ResourceAs[*Database](env, FixtureSQLite)
	if err != nil {
		return nil, err
	}
	db := res.DB()
	if db == nil {
		return nil, fmt.Errorf("database fixture is not live")
	}

	var baseline int64
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(post_id), 0) FROM posts").Scan(&baseline); err != nil {
		return nil, err
	}

	return &dbState{
		db:       db,
		rng:      rand.New(rand.NewSource(inputSeed)),
		posts:    res.Seed().Posts,
		params:   env.Params,
		baseline: baseline,
	}, nil
}

// dbCleanup removes posts written after Setup so later workloads see the seed data
func dbCleanup(ctx context.Context, state workload.State) error {
	s := state.(*dbState)
	_, err := s.db.ExecContext(ctx, "DELETE FROM posts WHERE post_id > ?", s.baseline)
	return err
}

func scanPosts(rows *sql.Rows) ([]post, error) {
	defer rows.Close()

	var posts []post
	for rows.Next() {
		var p post
		if err := rows.Scan(&p.ID, &p.Title, &p.Content, &p.BlogID); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

var postSink []post

func databaseWorkloads() []workload.Descriptor {
	fixtures := []string{FixtureSQLite}

	return []workload.Descriptor{
		{
			Name:        "db.find-by-id",
			Description: "Primary key lookup of a random post",
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				id := s.rng.Intn(s.posts) + 1

				var p post
				err := s.db.QueryRowContext(ctx,
					"SELECT post_id, title, content, blog_id FROM posts WHERE post_id = ?", id,
				).Scan(&p.ID, &p.Title, &p.Content, &p.BlogID)
				if errors.Is(err, sql.ErrNoRows) {
					return fmt.Errorf("post %d not found", id)
				}
				return err
			},
		},
		{
			Name:        "db.query-top100",
			Description: "Ordered range query returning the first 100 posts",
			Axes:        []workload.Axis{{Name: "limit", Values: []any{100}}},
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				limit := s.params.Int("limit", 100)

				rows, err := s.db.QueryContext(ctx,
					"SELECT post_id, title, content, blog_id FROM posts ORDER BY post_id LIMIT ?", limit)
				if err != nil {
					return err
				}
				posts, err := scanPosts(rows)
				if err != nil {
					return err
				}
				if want := min(limit, s.posts); len(posts) != want {
					return fmt.Errorf("got %d posts, want %d", len(posts), want)
				}
				postSink = posts
				return nil
			},
		},
		{
			Name:        "db.join-query",
			Description: "Posts joined with their blogs for the first blog ids",
			Axes:        []workload.Axis{{Name: "blogs", Values: []any{10}}},
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				rows, err := s.db.QueryContext(ctx, `
					SELECT p.post_id, p.title, b.url, p.blog_id
					FROM posts p
					JOIN blogs b ON b.blog_id = p.blog_id
					WHERE p.blog_id < ?
					ORDER BY p.post_id`, s.params.Int("blogs", 10))
				if err != nil {
					return err
				}
				posts, err := scanPosts(rows)
				if err != nil {
					return err
				}
				if len(posts) == 0 {
					return fmt.Errorf("join returned no rows")
				}
				postSink = posts
				return nil
			},
		},
		{
			Name:        "db.insert",
			Description: "Insert a single post",
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				_, err := s.db.ExecContext(ctx,
					"INSERT INTO posts (title, content, blog_id) VALUES (?, ?, ?)",
					"Inserted post", "Inserted content", s.rng.Intn(10)+1)
				return err
			},
			Teardown: dbCleanup,
		},
		{
			Name:        "db.update",
			Description: "Update the title of a random post",
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				id := s.rng.Intn(s.posts) + 1
				res, err := s.db.ExecContext(ctx, "UPDATE posts SET title = ? WHERE post_id = ?",
					fmt.Sprintf("Post %d (edited)", id), id)
				if err != nil {
					return err
				}
				if n, err := res.RowsAffected(); err != nil || n != 1 {
					return fmt.Errorf("update of post %d affected %d rows: %v", id, n, err)
				}
				return nil
			},
		},
		{
			Name:        "db.delete",
			Description: "Insert a post and delete it by id",
			Fixtures:    fixtures,
			Setup:       dbSetup,
			Run: func(ctx context.Context, state workload.State) error {
				s := state.(*dbState)
				res, err := s.db.ExecContext(ctx,
					"INSERT INTO posts (title, content, blog_id) VALUES (?, ?, ?)",
					"Doomed post", "Doomed content", 1)
				if err != nil {
					return err
				}
				id, err := res.LastInsertId()
				if err != nil {
					return err
				}
				res, err = s.db.ExecContext(ctx, "DELETE FROM posts WHERE post_id = ?", id)
				if err != nil {
					return err
				}
				if n, _ := res.RowsAffected(); n != 1 {
					return fmt.Errorf("delete of post %d affected %d rows", id, n)
				}
				return nil
			},
			Teardown: dbCleanup,
		},
	}
}

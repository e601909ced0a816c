// Package cache implements a response cache that sits directly in front
// of the backend call: an exact-match lookup keyed on the query and model,
// falling back to a similarity match against recent responses from the
// same model. A hit costs nothing and touches no backend, which is the
// cheapest possible answer to "which backend should serve this."
package cache

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/lanternrouter/lantern/internal/logging"
)

// Entry is one cached query/response pair.
type Entry struct {
	Key         string
	Query       string
	Response    string
	ModelRef    string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	AccessCount int64
	FromSimilar bool
}

// Stats summarizes cache health for operational reporting.
type Stats struct {
	TotalEntries   int64
	ValidEntries   int64
	ExpiredEntries int64
	TotalAccesses  int64
	AvgAccesses    float64
}

// Cache is a single-file SQLite response cache. One Cache instance is
// shared by every request the facade handles.
type Cache struct {
	db                  *sql.DB
	ttl                 time.Duration
	maxEntries          int
	similarityThreshold float64
	log                 *logging.Logger
}

// Open opens (creating if necessary) the cache database at path.
func Open(path string, ttl time.Duration, maxEntries int, similarityThreshold float64, log *logging.Logger) (*Cache, error) {
	if log == nil {
		log = logging.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: create directory: %w", err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	if similarityThreshold <= 0 {
		similarityThreshold = 0.85
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL")
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}

	return &Cache{
		db:                  db,
		ttl:                 ttl,
		maxEntries:          maxEntries,
		similarityThreshold: similarityThreshold,
		log:                 log.With("cache"),
	}, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error { return c.db.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	query TEXT NOT NULL,
	response TEXT NOT NULL,
	model_ref TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_model_expires ON cache_entries(model_ref, expires_at);
`

func key(query, modelRef string) string {
	sum := sha256.Sum256([]byte(query + "\x00" + modelRef))
	return hex.EncodeToString(sum[:])
}

// Get looks up query for modelRef, first by exact key match and, failing
// that, by similarity against the model's recent entries. It reports
// whether a usable (non-expired) entry was found.
func (c *Cache) Get(query, modelRef string) (Entry, bool, error) {
	now := time.Now()
	k := key(query, modelRef)

	var e Entry
	var createdAt, expiresAt int64
	err := c.db.QueryRow(
		`SELECT key, query, response, model_ref, created_at, expires_at, access_count
		 FROM cache_entries WHERE key = ? AND expires_at > ?`,
		k, now.Unix(),
	).Scan(&e.Key, &e.Query, &e.Response, &e.ModelRef, &createdAt, &expiresAt, &e.AccessCount)

	switch err {
	case nil:
		e.CreatedAt = time.Unix(createdAt, 0).UTC()
		e.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		c.touch(e.Key, now)
		e.AccessCount++
		return e, true, nil
	case sql.ErrNoRows:
		return c.findSimilar(query, modelRef, now)
	default:
		return Entry{}, false, err
	}
}

// findSimilar scans the model's 100 most recent valid entries for the best
// Jaccard-similarity match above the configured threshold. This is the
// same word-set/length-ratio scheme used upstream, ported directly rather
// than replaced with a real embedding model — the corpus never wires an
// embedding/vector dependency for this kind of exact-recall cache, so the
// n-gram heuristic is kept as-is rather than invented anew.
func (c *Cache) findSimilar(query, modelRef string, now time.Time) (Entry, bool, error) {
	rows, err := c.db.Query(
		`SELECT key, query, response, model_ref, created_at, expires_at, access_count
		 FROM cache_entries WHERE model_ref = ? AND expires_at > ?
		 ORDER BY created_at DESC LIMIT 100`,
		modelRef, now.Unix(),
	)
	if err != nil {
		return Entry{}, false, err
	}
	defer rows.Close()

	var best Entry
	var bestCreated, bestExpires int64
	bestScore := 0.0

	for rows.Next() {
		var e Entry
		var createdAt, expiresAt int64
		if err := rows.Scan(&e.Key, &e.Query, &e.Response, &e.ModelRef, &createdAt, &expiresAt, &e.AccessCount); err != nil {
			return Entry{}, false, err
		}
		score := similarity(query, e.Query)
		if score > c.similarityThreshold && score > bestScore {
			bestScore = score
			best = e
			bestCreated, bestExpires = createdAt, expiresAt
		}
	}
	if err := rows.Err(); err != nil {
		return Entry{}, false, err
	}
	if bestScore == 0 {
		return Entry{}, false, nil
	}

	best.CreatedAt = time.Unix(bestCreated, 0).UTC()
	best.ExpiresAt = time.Unix(bestExpires, 0).UTC()
	best.FromSimilar = true
	c.touch(best.Key, now)
	best.AccessCount++
	return best, true, nil
}

func (c *Cache) touch(key string, now time.Time) {
	if _, err := c.db.Exec(
		`UPDATE cache_entries SET access_count = access_count + 1, last_accessed = ? WHERE key = ?`,
		now.Unix(), key,
	); err != nil {
		c.log.Warn().Err(err).Msg("failed to update cache access stats")
	}
}

// Set stores response under query/modelRef with the cache's default TTL,
// then evicts expired and over-quota entries.
func (c *Cache) Set(query, response, modelRef string) error {
	now := time.Now()
	k := key(query, modelRef)
	_, err := c.db.Exec(
		`INSERT INTO cache_entries (key, query, response, model_ref, created_at, expires_at, access_count, last_accessed)
		 VALUES (?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(key) DO UPDATE SET
			response = excluded.response,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			last_accessed = excluded.last_accessed`,
		k, query, response, modelRef, now.Unix(), now.Add(c.ttl).Unix(), now.Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	c.evict(now)
	return nil
}

func (c *Cache) evict(now time.Time) {
	if _, err := c.db.Exec(`DELETE FROM cache_entries WHERE expires_at <= ?`, now.Unix()); err != nil {
		c.log.Warn().Err(err).Msg("failed to sweep expired cache entries")
	}
	if _, err := c.db.Exec(
		`DELETE FROM cache_entries WHERE key IN (
			SELECT key FROM cache_entries ORDER BY last_accessed ASC
			LIMIT MAX(0, (SELECT COUNT(*) FROM cache_entries) - ?)
		)`, c.maxEntries,
	); err != nil {
		c.log.Warn().Err(err).Msg("failed to trim cache to max entries")
	}
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	_, err := c.db.Exec(`DELETE FROM cache_entries`)
	return err
}

// Stats reports cache-wide counters for operational visibility.
func (c *Cache) Stats() (Stats, error) {
	var s Stats
	now := time.Now().Unix()
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries`).Scan(&s.TotalEntries); err != nil {
		return Stats{}, err
	}
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM cache_entries WHERE expires_at > ?`, now).Scan(&s.ValidEntries); err != nil {
		return Stats{}, err
	}
	s.ExpiredEntries = s.TotalEntries - s.ValidEntries

	var totalAccess sql.NullInt64
	var avgAccess sql.NullFloat64
	if err := c.db.QueryRow(`SELECT SUM(access_count), AVG(access_count) FROM cache_entries`).Scan(&totalAccess, &avgAccess); err != nil {
		return Stats{}, err
	}
	s.TotalAccesses = totalAccess.Int64
	s.AvgAccesses = avgAccess.Float64
	return s, nil
}

var (
	nonWord     = regexp.MustCompile(`[^\w\s]`)
	whitespace  = regexp.MustCompile(`\s+`)
)

func normalize(s string) string {
	s = whitespace.ReplaceAllString(s, " ")
	s = nonWord.ReplaceAllString(s, "")
	return strings.ToLower(strings.TrimSpace(s))
}

// similarity computes a Jaccard word-set similarity weighted by relative
// length, matching the upstream cache's scoring so a threshold tuned
// against it keeps meaning here.
func similarity(a, b string) float64 {
	a, b = normalize(a), normalize(b)
	if a == "" || b == "" {
		return 0
	}

	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	jaccard := float64(intersection) / float64(union)

	shorter, longer := len(a), len(b)
	if shorter > longer {
		shorter, longer = longer, shorter
	}
	lengthRatio := float64(shorter) / float64(longer)

	return jaccard * (0.7 + 0.3*lengthRatio)
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

// Package cache stores compiled Lua keyed by content hash.
//
// Entries are canonical CBOR blobs in a sqlite table, so identical
// compilations always produce identical rows.
package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/fern/compiler"
)

var log = commonlog.GetLogger("fern.cache")

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Entry is one cached compilation.
type Entry struct {
	Source          string          `cbor:"1,keyasint"`
	Code            string          `cbor:"2,keyasint"`
	LineMap         map[int]LinePos `cbor:"3,keyasint"`
	Warnings        []CachedWarning `cbor:"4,keyasint"`
	CompilerVersion string          `cbor:"5,keyasint"`
	Macros          []MacroFile     `cbor:"6,keyasint"`
}

// MacroFile is a macro module a compilation imported, with the source it
// had at the time.
type MacroFile struct {
	Path   string `cbor:"1,keyasint"`
	Source string `cbor:"2,keyasint"`
}

// LinePos is the source position a Lua line came from.
type LinePos struct {
	Line   int `cbor:"1,keyasint"`
	Column int `cbor:"2,keyasint"`
}

// CachedWarning is a compile warning stored with its entry.
type CachedWarning struct {
	Filename string `cbor:"1,keyasint"`
	Line     int    `cbor:"2,keyasint"`
	Column   int    `cbor:"3,keyasint"`
	Msg      string `cbor:"4,keyasint"`
}

// NewEntry captures a compilation result.
func NewEntry(source string, res *compiler.Result, version string) *Entry {
	e := &Entry{
		Source:          source,
		Code:            res.Code,
		LineMap:         make(map[int]LinePos, len(res.LineMap)),
		CompilerVersion: version,
	}
	for line, pos := range res.LineMap {
		e.LineMap[line] = LinePos{Line: pos.Line, Column: pos.Column}
	}
	for _, w := range res.Warnings {
		e.Warnings = append(e.Warnings, CachedWarning{
			Filename: w.Filename,
			Line:     w.Pos.Line,
			Column:   w.Pos.Column,
			Msg:      w.Msg,
		})
	}
	return e
}

// Fresh reports whether every macro module the entry was compiled with
// still has the recorded source.
func (e *Entry) Fresh() bool {
	for _, m := range e.Macros {
		data, err := os.ReadFile(m.Path)
		if err != nil || string(data) != m.Source {
			return false
		}
	}
	return true
}

// Result rebuilds the compilation result the entry was made from.
func (e *Entry) Result() *compiler.Result {
	res := &compiler.Result{Code: e.Code, LineMap: make(compiler.LineMap, len(e.LineMap))}
	for line, pos := range e.LineMap {
		res.LineMap[line] = compiler.Position{Line: pos.Line, Column: pos.Column}
	}
	for _, w := range e.Warnings {
		res.Warnings = append(res.Warnings, compiler.Warning{
			Filename: w.Filename,
			Pos:      compiler.Position{Line: w.Line, Column: w.Column},
			Msg:      w.Msg,
		})
	}
	return res
}

// MarshalEntry serializes an Entry to canonical CBOR bytes.
func MarshalEntry(e *Entry) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

// UnmarshalEntry deserializes an Entry from CBOR bytes.
func UnmarshalEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := cbor.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("cache: unmarshal entry: %w", err)
	}
	return &e, nil
}

// Cache is a sqlite-backed compile cache. It is safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating cache dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache: %w", err)
	}
	// one connection keeps :memory: databases coherent
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		key TEXT PRIMARY KEY,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

// Path returns the database location.
func (c *Cache) Path() string { return c.path }

// Close closes the database connection.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Get returns the entry stored under key. The boolean reports a hit.
func (c *Cache) Get(key string) (*Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var data []byte
	err := c.db.QueryRow("SELECT data FROM entries WHERE key = ?", key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("querying entry: %w", err)
	}
	e, err := UnmarshalEntry(data)
	if err != nil {
		return nil, false, err
	}
	log.Debugf("hit %s", key)
	return e, true, nil
}

// Put stores e under key, replacing any earlier entry.
func (c *Cache) Put(key string, e *Entry) error {
	data, err := MarshalEntry(e)
	if err != nil {
		return fmt.Errorf("encoding entry: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.db.Exec("INSERT OR REPLACE INTO entries (key, data) VALUES (?, ?)", key, data); err != nil {
		return fmt.Errorf("saving entry: %w", err)
	}
	log.Debugf("stored %s", key)
	return nil
}

// Prune deletes every entry whose key keep rejects and returns how many
// were removed.
func (c *Cache) Prune(keep func(key string) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.db.Query("SELECT key FROM entries")
	if err != nil {
		return 0, fmt.Errorf("listing entries: %w", err)
	}
	var stale []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return 0, fmt.Errorf("listing entries: %w", err)
		}
		if !keep(key) {
			stale = append(stale, key)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, key := range stale {
		if _, err := c.db.Exec("DELETE FROM entries WHERE key = ?", key); err != nil {
			return 0, fmt.Errorf("deleting entry: %w", err)
		}
	}
	if len(stale) > 0 {
		log.Infof("pruned %d entries", len(stale))
	}
	return len(stale), nil
}

// Len returns the number of stored entries.
func (c *Cache) Len() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	if err := c.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

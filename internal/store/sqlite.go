package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
	"github.com/philippgille/chromem-go"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/rcliao/context-engine/internal/model"
)

// TieredStore implements Store on SQLite plus a chromem-go semantic index.
// The SQLite row is authoritative; the index is derived and rebuildable.
type TieredStore struct {
	db      *sql.DB
	dbPath  string
	vectors *chromem.DB
	cols    map[model.Tier]*chromem.Collection
	entropy *rand.Rand
	logger  *zap.Logger

	// mu serializes tier transitions and index mutations so a concurrent
	// promotion can never leave a record indexed in both tiers.
	mu sync.RWMutex
}

// timeLayout is fixed-width so stored timestamps compare chronologically
// as strings. RFC3339Nano trims trailing zeros and breaks that.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var collectionNames = map[model.Tier]string{
	model.TierRecent:   "records-recent",
	model.TierArchival: "records-archival",
}

// NewTieredStore opens or creates the record database at dbPath. When
// indexPath is empty the semantic index lives in memory only and is rebuilt
// from SQLite on the next open.
func NewTieredStore(dbPath, indexPath string, logger *zap.Logger) (*TieredStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "create db dir", goerr.V("dir", dir))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, goerr.Wrap(err, "open db", goerr.V("path", dbPath))
	}
	// Writes come from both the caller and the background embed worker.
	// A single connection plus busy_timeout keeps them from tripping
	// SQLITE_BUSY on each other.
	db.SetMaxOpenConns(1)

	var vectors *chromem.DB
	if indexPath == "" {
		vectors = chromem.NewDB()
	} else {
		vectors, err = chromem.NewPersistentDB(indexPath, true)
		if err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "open semantic index", goerr.V("path", indexPath))
		}
	}

	s := &TieredStore{
		db:      db,
		dbPath:  dbPath,
		vectors: vectors,
		cols:    make(map[model.Tier]*chromem.Collection),
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}

	for tier, name := range collectionNames {
		col, err := vectors.GetOrCreateCollection(name, nil, nil)
		if err != nil {
			db.Close()
			return nil, goerr.Wrap(err, "create collection", goerr.V("name", name))
		}
		s.cols[tier] = col
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "migrate")
	}

	return s, nil
}

func (s *TieredStore) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

func (s *TieredStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id               TEXT PRIMARY KEY,
		text             TEXT NOT NULL,
		text_hash        TEXT NOT NULL,
		source           TEXT NOT NULL,
		tags             TEXT,
		tier             TEXT NOT NULL DEFAULT 'recent',
		supersedes       TEXT,
		created_at       TEXT NOT NULL,
		embedded         INTEGER NOT NULL DEFAULT 0,
		embedding        BLOB,
		access_count     INTEGER NOT NULL DEFAULT 0,
		last_accessed_at TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_ingest ON records(source, text_hash, created_at);
	CREATE INDEX IF NOT EXISTS idx_records_tier ON records(tier);
	CREATE INDEX IF NOT EXISTS idx_records_created ON records(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_embedded ON records(embedded);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *TieredStore) Store(ctx context.Context, p StoreParams) (*model.Record, error) {
	if strings.TrimSpace(p.Text) == "" {
		return nil, goerr.New("record text is empty")
	}

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	createdAt = createdAt.UTC()

	id := s.newID()
	hash := model.ContentHash(p.Text)

	var tagsJSON *string
	if len(p.Tags) > 0 {
		b, _ := json.Marshal(p.Tags)
		str := string(b)
		tagsJSON = &str
	}

	var supersedes *string
	if p.Supersedes != "" {
		supersedes = &p.Supersedes
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (id, text, text_hash, source, tags, tier, supersedes, created_at, access_count)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		id, p.Text, hash, p.Source, tagsJSON, string(model.TierRecent), supersedes,
		createdAt.Format(timeLayout))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return nil, goerr.Wrap(model.ErrDuplicateRecord, "store record",
				goerr.V("source", p.Source), goerr.V("created_at", createdAt))
		}
		return nil, goerr.Wrap(err, "insert record")
	}

	s.logger.Debug("stored record",
		zap.String("id", id), zap.String("source", p.Source), zap.Int("len", len(p.Text)))

	return &model.Record{
		ID:         id,
		Text:       p.Text,
		Source:     p.Source,
		Tags:       p.Tags,
		Tier:       model.TierRecent,
		Supersedes: p.Supersedes,
		CreatedAt:  createdAt,
	}, nil
}

func (s *TieredStore) Get(ctx context.Context, id string) (*model.Record, error) {
	r, err := s.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}

	// Access tracking feeds the promotion policy; best effort.
	now := time.Now().UTC().Format(timeLayout)
	s.db.ExecContext(ctx,
		`UPDATE records SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`,
		now, id)

	return r, nil
}

// getRecord reads a record without touching its access counter.
func (s *TieredStore) getRecord(ctx context.Context, id string) (*model.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, text, source, tags, tier, supersedes, created_at, embedding, access_count, last_accessed_at
		 FROM records WHERE id = ?`, id)

	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, goerr.Wrap(model.ErrNotFound, "get record", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "scan record", goerr.V("id", id))
	}
	return r, nil
}

func (s *TieredStore) List(ctx context.Context, p ListParams) ([]*model.Record, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 100
	}

	where := []string{"1=1"}
	var args []interface{}

	if p.Tier != "" {
		where = append(where, "tier = ?")
		args = append(args, string(p.Tier))
	}
	if p.Source != "" {
		where = append(where, "source = ?")
		args = append(args, p.Source)
	}
	if !p.Since.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, p.Since.UTC().Format(timeLayout))
	}
	if !p.Until.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, p.Until.UTC().Format(timeLayout))
	}

	query := fmt.Sprintf(`
		SELECT id, text, source, tags, tier, supersedes, created_at, embedding, access_count, last_accessed_at
		FROM records WHERE %s
		ORDER BY created_at DESC, id ASC
		LIMIT ?`, strings.Join(where, " AND "))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "list records")
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "scan record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *TieredStore) SetEmbedding(ctx context.Context, id string, vec []float32) error {
	if len(vec) == 0 {
		return goerr.New("empty embedding", goerr.V("id", id))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE records SET embedding = ?, embedded = 1 WHERE id = ?`,
		encodeVector(vec), id)
	if err != nil {
		return goerr.Wrap(err, "persist embedding", goerr.V("id", id))
	}

	if err := s.indexRecord(ctx, r, vec); err != nil {
		return err
	}

	s.logger.Debug("embedded record", zap.String("id", id), zap.Int("dims", len(vec)))
	return nil
}

// indexRecord adds a record to its tier's collection. Caller holds mu.
func (s *TieredStore) indexRecord(ctx context.Context, r *model.Record, vec []float32) error {
	doc := chromem.Document{
		ID:        r.ID,
		Content:   r.Text,
		Embedding: vec,
		Metadata: map[string]string{
			"source":     r.Source,
			"created_at": r.CreatedAt.Format(timeLayout),
		},
	}
	if err := s.cols[r.Tier].AddDocument(ctx, doc); err != nil {
		return goerr.Wrap(err, "index record", goerr.V("id", r.ID), goerr.V("tier", r.Tier))
	}
	return nil
}

func (s *TieredStore) Promote(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.getRecord(ctx, id)
	if err != nil {
		return err
	}
	if r.Tier == model.TierArchival {
		return nil // idempotent
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE records SET tier = ? WHERE id = ?`, string(model.TierArchival), id); err != nil {
		return goerr.Wrap(err, "promote record", goerr.V("id", id))
	}

	// Move the index entry. Delete-then-add under the write lock keeps the
	// single-copy invariant; SQLite stays authoritative if this fails.
	if r.HasEmbedding() {
		if err := s.cols[model.TierRecent].Delete(ctx, nil, nil, id); err != nil {
			s.logger.Warn("remove from recent index", zap.String("id", id), zap.Error(err))
		}
		r.Tier = model.TierArchival
		if err := s.indexRecord(ctx, r, r.Embedding); err != nil {
			return err
		}
	}

	s.logger.Debug("promoted record", zap.String("id", id))
	return nil
}

func (s *TieredStore) PromotionCandidates(ctx context.Context, minAge time.Duration, minAccess int) ([]string, error) {
	cutoff := time.Now().UTC().Add(-minAge).Format(timeLayout)

	query := `SELECT id FROM records WHERE tier = ? AND embedded = 1 AND created_at <= ?`
	args := []interface{}{string(model.TierRecent), cutoff}
	if minAccess > 0 {
		query = `SELECT id FROM records WHERE tier = ? AND embedded = 1 AND (created_at <= ? OR access_count >= ?)`
		args = append(args, minAccess)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "promotion candidates")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *TieredStore) PendingEmbedding(ctx context.Context, limit int) ([]*model.Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, source, tags, tier, supersedes, created_at, embedding, access_count, last_accessed_at
		 FROM records WHERE embedded = 0
		 ORDER BY created_at ASC, id ASC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, goerr.Wrap(err, "pending embedding")
	}
	defer rows.Close()

	var records []*model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "scan record")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// RebuildIndex drops both collections and re-adds every embedded record from
// SQLite. The index is derived state; this is the recovery path.
func (s *TieredStore) RebuildIndex(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for tier, name := range collectionNames {
		if err := s.vectors.DeleteCollection(name); err != nil {
			return goerr.Wrap(err, "drop collection", goerr.V("name", name))
		}
		col, err := s.vectors.GetOrCreateCollection(name, nil, nil)
		if err != nil {
			return goerr.Wrap(err, "recreate collection", goerr.V("name", name))
		}
		s.cols[tier] = col
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, text, source, tags, tier, supersedes, created_at, embedding, access_count, last_accessed_at
		 FROM records WHERE embedded = 1`)
	if err != nil {
		return goerr.Wrap(err, "load embedded records")
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return goerr.Wrap(err, "scan record")
		}
		if err := s.indexRecord(ctx, r, r.Embedding); err != nil {
			return err
		}
		n++
	}

	s.logger.Info("rebuilt semantic index", zap.Int("records", n))
	return rows.Err()
}

func (s *TieredStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*model.Record, error) {
	var r model.Record
	var tagsJSON, supersedes, lastAccessed sql.NullString
	var tier, createdAt string
	var embedding []byte

	err := row.Scan(&r.ID, &r.Text, &r.Source, &tagsJSON, &tier, &supersedes,
		&createdAt, &embedding, &r.AccessCount, &lastAccessed)
	if err != nil {
		return nil, err
	}

	r.Tier = model.Tier(tier)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &r.Tags)
	}
	if supersedes.Valid {
		r.Supersedes = supersedes.String
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		r.CreatedAt = t
	}
	if lastAccessed.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastAccessed.String); err == nil {
			r.LastAccessedAt = &t
		}
	}
	if len(embedding) > 0 {
		r.Embedding = decodeVector(embedding)
	}
	return &r, nil
}

// encodeVector packs a float32 slice as little-endian bytes for the BLOB
// column.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

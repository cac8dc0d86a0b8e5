package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gridbase/gridbase/internal"
	"github.com/gridbase/gridbase/internal/codec"
	"github.com/gridbase/gridbase/internal/util"
	"github.com/shopmonkeyus/go-common/logger"
	"github.com/spf13/cast"
	"github.com/tidwall/buntdb"
	"golang.org/x/sync/singleflight"
)

const (
	schemaKeyPrefix     = "schema:"
	connectionKeyPrefix = "connection:"
)

// Config describes how to open a Store.
type Config struct {
	Context context.Context
	Logger  logger.Logger
	Dir     string

	// Codec, when set, seals connection content at rest.
	Codec *codec.FieldCodec

	SchemaCacheTTL      time.Duration
	SchemaCacheSize     int
	ConnectionCacheTTL  time.Duration
	ConnectionCacheSize int
}

// Store persists schemas and connections in an embedded key value database
// with a read-through cache in front of each namespace.
type Store struct {
	logger      logger.Logger
	db          *buntdb.DB
	codec       *codec.FieldCodec
	schemas     util.Cache
	connections util.Cache
	schemaTTL   time.Duration
	connTTL     time.Duration
	group       singleflight.Group
	once        sync.Once

	// gens invalidates in flight cache fills: a load may only fill the
	// cache if no write to the same key landed while it was reading.
	genMu sync.Mutex
	gens  map[string]uint64
}

// FilenameFromDir returns the database filename inside a data directory.
func FilenameFromDir(dir string) string {
	return filepath.Join(dir, "gridbase-data.db")
}

// New opens the store. Pass ":memory:" as the dir for an ephemeral database.
func New(config Config) (*Store, error) {
	path := config.Dir
	if path != ":memory:" {
		path = FilenameFromDir(config.Dir)
	}
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db %s", path)
	}
	ctx := config.Context
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Store{
		logger:      config.Logger.WithPrefix("[store]"),
		db:          db,
		codec:       config.Codec,
		schemas:     util.NewCache(ctx, time.Minute, config.SchemaCacheSize),
		connections: util.NewCache(ctx, time.Minute, config.ConnectionCacheSize),
		schemaTTL:   config.SchemaCacheTTL,
		connTTL:     config.ConnectionCacheTTL,
		gens:        make(map[string]uint64),
	}
	if s.schemaTTL <= 0 {
		s.schemaTTL = time.Minute * 5
	}
	if s.connTTL <= 0 {
		s.connTTL = time.Minute * 5
	}
	return s, nil
}

// Close will close the store and the underlying database.
func (s *Store) Close() error {
	s.logger.Debug("closing")
	s.once.Do(func() {
		s.schemas.Close()
		s.connections.Close()
		s.db.Shrink()
		s.db.Close()
	})
	s.logger.Debug("closed")
	return nil
}

func (s *Store) generation(key string) uint64 {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.gens[key]
}

// bumpGeneration is called after a write reaches the database and before it
// replaces the cache, so a load that read the old value can never fill the
// cache over the new one.
func (s *Store) bumpGeneration(key string) {
	s.genMu.Lock()
	s.gens[key]++
	s.genMu.Unlock()
}

func (s *Store) getKey(key string) (bool, string, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		val, err := tx.Get(key, false)
		if err != nil {
			if err == buntdb.ErrNotFound {
				return nil
			}
			return err
		}
		value = val
		found = true
		return nil
	})
	if err != nil {
		return false, "", errors.Wrapf(err, "failed to get key %s", key)
	}
	return found, value, nil
}

func (s *Store) setKey(key, value string) error {
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, value, nil)
		return err
	})
	if err != nil {
		return errors.Wrapf(err, "failed to set key %s", key)
	}
	return nil
}

func (s *Store) deleteKey(key string) (bool, error) {
	found := true
	err := s.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Delete(key); err != nil {
			if err == buntdb.ErrNotFound {
				found = false
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, errors.Wrapf(err, "failed to delete key %s", key)
	}
	return found, nil
}

func (s *Store) listKeys(prefix string) ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(prefix+"*", func(key, _ string) bool {
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return true
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list keys")
	}
	return ids, nil
}

// GetSchema returns the schema with the given id or ErrSchemaNotFound.
func (s *Store) GetSchema(id string) (*internal.Schema, error) {
	key := schemaKeyPrefix + id
	found, cached, err := s.schemas.Get(key)
	if err != nil {
		return nil, err
	}
	if found {
		internal.CacheHits.WithLabelValues("schema").Inc()
		return cached.(*internal.Schema), nil
	}
	internal.CacheMisses.WithLabelValues("schema").Inc()
	val, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.generation(key)
		found, raw, err := s.getKey(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.Mark(errors.Newf("schema %s not found", id), internal.ErrSchemaNotFound)
		}
		var schema internal.Schema
		if err := json.Unmarshal([]byte(raw), &schema); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal schema %s", id)
		}
		if gen == s.generation(key) {
			if err := s.schemas.Set(key, &schema, s.schemaTTL); err != nil {
				return nil, err
			}
		}
		return &schema, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*internal.Schema), nil
}

// SetSchema stores the schema and replaces any cached copy before returning.
func (s *Store) SetSchema(schema *internal.Schema) error {
	if schema.ID == "" {
		return errors.New("schema id is required")
	}
	key := schemaKeyPrefix + schema.ID
	if err := s.setKey(key, util.JSONStringify(schema)); err != nil {
		return err
	}
	s.bumpGeneration(key)
	return s.schemas.Set(key, schema, s.schemaTTL)
}

// DeleteSchema removes the schema or returns ErrSchemaNotFound.
func (s *Store) DeleteSchema(id string) error {
	key := schemaKeyPrefix + id
	found, err := s.deleteKey(key)
	if err != nil {
		return err
	}
	s.bumpGeneration(key)
	if err := s.schemas.Delete(key); err != nil {
		return err
	}
	if !found {
		return errors.Mark(errors.Newf("schema %s not found", id), internal.ErrSchemaNotFound)
	}
	return nil
}

// ListSchemas returns the ids of every stored schema.
func (s *Store) ListSchemas() ([]string, error) {
	return s.listKeys(schemaKeyPrefix)
}

// GetConnection returns the connection with the given id, with its content
// opened when a codec is configured.
func (s *Store) GetConnection(id string) (*internal.Connection, error) {
	key := connectionKeyPrefix + id
	found, cached, err := s.connections.Get(key)
	if err != nil {
		return nil, err
	}
	if found {
		internal.CacheHits.WithLabelValues("connection").Inc()
		return cached.(*internal.Connection), nil
	}
	internal.CacheMisses.WithLabelValues("connection").Inc()
	val, err, _ := s.group.Do(key, func() (any, error) {
		gen := s.generation(key)
		found, raw, err := s.getKey(key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, errors.Mark(errors.Newf("connection %s not found", id), internal.ErrConnectionNotFound)
		}
		var conn internal.Connection
		if err := json.Unmarshal([]byte(raw), &conn); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal connection %s", id)
		}
		if s.codec != nil && conn.Content != "" {
			opened, ok := s.codec.Decrypt(conn.Content)
			if !ok {
				return nil, errors.Newf("failed to open content for connection %s", id)
			}
			conn.Content = cast.ToString(opened)
		}
		if gen == s.generation(key) {
			if err := s.connections.Set(key, &conn, s.connTTL); err != nil {
				return nil, err
			}
		}
		return &conn, nil
	})
	if err != nil {
		return nil, err
	}
	return val.(*internal.Connection), nil
}

// SetConnection stores the connection, sealing its content when a codec is
// configured, and replaces any cached copy before returning.
func (s *Store) SetConnection(conn *internal.Connection) error {
	if conn.ID == "" {
		return errors.New("connection id is required")
	}
	stored := *conn
	if s.codec != nil && stored.Content != "" {
		sealed, err := s.codec.Encrypt(stored.Content)
		if err != nil {
			return errors.Wrapf(err, "failed to seal content for connection %s", conn.ID)
		}
		stored.Content = sealed
	}
	key := connectionKeyPrefix + conn.ID
	if err := s.setKey(key, util.JSONStringify(stored)); err != nil {
		return err
	}
	s.bumpGeneration(key)
	cached := *conn
	return s.connections.Set(key, &cached, s.connTTL)
}

// DeleteConnection removes the connection or returns ErrConnectionNotFound.
func (s *Store) DeleteConnection(id string) error {
	key := connectionKeyPrefix + id
	found, err := s.deleteKey(key)
	if err != nil {
		return err
	}
	s.bumpGeneration(key)
	if err := s.connections.Delete(key); err != nil {
		return err
	}
	if !found {
		return errors.Mark(errors.Newf("connection %s not found", id), internal.ErrConnectionNotFound)
	}
	return nil
}

// ListConnections returns the ids of every stored connection.
func (s *Store) ListConnections() ([]string, error) {
	return s.listKeys(connectionKeyPrefix)
}

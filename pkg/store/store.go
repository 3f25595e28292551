// Package store persists per-agent bridge state: negotiated protocol
// records and AT Protocol sessions. Records are keyed by a normalized
// agent identifier and overwritten wholesale on save.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

type Store struct {
	db   *sql.DB
	seal *sealer
}

// New opens (or creates) the database at dsn. A non-empty masterKey
// enables encryption at rest for stored session tokens.
func New(dsn, masterKey string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &Store{db: db}

	if masterKey != "" {
		sl, err := newSealer(masterKey)
		if err != nil {
			db.Close()
			return nil, err
		}
		s.seal = sl
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS protocols (
    agent_id     TEXT NOT NULL,
    message_type TEXT NOT NULL,
    record       TEXT NOT NULL,
    updated_at   TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (agent_id, message_type)
);

CREATE TABLE IF NOT EXISTS atproto_sessions (
    agent_id    TEXT PRIMARY KEY,
    did         TEXT NOT NULL,
    access_jwt  BLOB NOT NULL,
    refresh_jwt BLOB NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// ProtocolRecord is a persisted negotiated-protocol mapping entry. The
// record column holds the protocol as JSON; the store never inspects it.
type ProtocolRecord struct {
	AgentID     string
	MessageType string
	Record      []byte
	UpdatedAt   time.Time
}

// UpsertProtocol inserts or replaces the mapping for the record's
// message type. Last write wins.
func (s *Store) UpsertProtocol(ctx context.Context, rec *ProtocolRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO protocols (agent_id, message_type, record, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(agent_id, message_type) DO UPDATE SET
		   record = excluded.record,
		   updated_at = excluded.updated_at`,
		rec.AgentID, rec.MessageType, string(rec.Record), time.Now().UTC(),
	)
	return err
}

// ListProtocols returns every protocol record stored for the agent.
func (s *Store) ListProtocols(ctx context.Context, agentID string) ([]ProtocolRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, message_type, record, updated_at
		 FROM protocols WHERE agent_id = ? ORDER BY message_type`,
		agentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []ProtocolRecord
	for rows.Next() {
		var rec ProtocolRecord
		var record string
		if err := rows.Scan(&rec.AgentID, &rec.MessageType, &record, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Record = []byte(record)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *Store) DeleteProtocol(ctx context.Context, agentID, messageType string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM protocols WHERE agent_id = ? AND message_type = ?`,
		agentID, messageType,
	)
	return err
}

// SessionRecord is a persisted AT Protocol session token pair.
type SessionRecord struct {
	AgentID    string
	DID        string
	AccessJWT  string
	RefreshJWT string
	UpdatedAt  time.Time
}

// SaveSession overwrites the stored session for the agent.
func (s *Store) SaveSession(ctx context.Context, rec *SessionRecord) error {
	access, err := s.sealString(rec.AccessJWT)
	if err != nil {
		return fmt.Errorf("store: sealing access token: %w", err)
	}
	refresh, err := s.sealString(rec.RefreshJWT)
	if err != nil {
		return fmt.Errorf("store: sealing refresh token: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO atproto_sessions (agent_id, did, access_jwt, refresh_jwt, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(agent_id) DO UPDATE SET
		   did = excluded.did,
		   access_jwt = excluded.access_jwt,
		   refresh_jwt = excluded.refresh_jwt,
		   updated_at = excluded.updated_at`,
		rec.AgentID, rec.DID, access, refresh, time.Now().UTC(),
	)
	return err
}

// GetSession returns the stored session for the agent, or nil when none
// exists. Absence is a normal case, not an error.
func (s *Store) GetSession(ctx context.Context, agentID string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var access, refresh []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT agent_id, did, access_jwt, refresh_jwt, updated_at
		 FROM atproto_sessions WHERE agent_id = ?`,
		agentID,
	).Scan(&rec.AgentID, &rec.DID, &access, &refresh, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if rec.AccessJWT, err = s.openString(access); err != nil {
		return nil, fmt.Errorf("store: opening access token: %w", err)
	}
	if rec.RefreshJWT, err = s.openString(refresh); err != nil {
		return nil, fmt.Errorf("store: opening refresh token: %w", err)
	}
	return rec, nil
}

func (s *Store) DeleteSession(ctx context.Context, agentID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM atproto_sessions WHERE agent_id = ?`, agentID,
	)
	return err
}

func (s *Store) sealString(plain string) ([]byte, error) {
	if s.seal == nil {
		return []byte(plain), nil
	}
	return s.seal.seal([]byte(plain))
}

func (s *Store) openString(data []byte) (string, error) {
	if s.seal == nil {
		return string(data), nil
	}
	plain, err := s.seal.open(data)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

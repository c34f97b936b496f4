package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the "sqlite3" driver
	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/recguard/internal/domain"
)

// errLogClosed is returned by every operation after Close.
var errLogClosed = errors.New("event log is closed")

// EventLog implements domain.EventLog using a SQLCipher encrypted SQLite database.
// Events are append-only; seq preserves insertion order.
type EventLog struct {
	mu     sync.Mutex
	db     *sql.DB
	dbPath string
}

// NewEventLog opens (or creates) the encrypted event log in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEventLog(dataDir string, key []byte) (*EventLog, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, eventDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	// Verify the key works by touching the database
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	l := &EventLog{db: db, dbPath: dbPath}
	if err := l.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return l, nil
}

// OpenEventLog resolves the key from provider and opens the log.
func OpenEventLog(dataDir string, provider domain.KeyProvider) (*EventLog, error) {
	key, err := EnsureKey(provider)
	if err != nil {
		return nil, err
	}
	return NewEventLog(dataDir, key)
}

func (l *EventLog) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS security_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		payload TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		app_version TEXT NOT NULL DEFAULT ''
	);
	`
	_, err := l.db.Exec(schema)
	return err
}

// Append stores one event at the end of the log.
func (l *EventLog) Append(event domain.SecurityEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return errLogClosed
	}

	payload := event.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "failed to encode event payload")
	}

	_, err = l.db.Exec(`
		INSERT INTO security_events (id, payload, timestamp, app_version)
		VALUES (?, ?, ?, ?)`,
		event.ID, string(data), event.Timestamp.UnixNano(), event.AppVersion,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert security event")
	}
	return nil
}

// List returns all events in insertion order.
func (l *EventLog) List() ([]domain.SecurityEvent, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil, errLogClosed
	}

	rows, err := l.db.Query(`SELECT id, payload, timestamp, app_version FROM security_events ORDER BY seq ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query security events")
	}
	defer rows.Close()

	events := make([]domain.SecurityEvent, 0)
	for rows.Next() {
		var (
			ev      domain.SecurityEvent
			payload string
			ts      int64
		)
		if err := rows.Scan(&ev.ID, &payload, &ts, &ev.AppVersion); err != nil {
			return nil, errors.Wrap(err, "failed to scan security event")
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, errors.Wrapf(err, "corrupt payload for event %s", ev.ID)
		}
		ev.Timestamp = time.Unix(0, ts)
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate security events")
}

// Path returns the database file path.
func (l *EventLog) Path() string {
	return l.dbPath
}

// Close releases the database connection.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.db == nil {
		return nil
	}
	err := l.db.Close()
	l.db = nil
	return err
}

// Ensure EventLog implements domain.EventLog.
var _ domain.EventLog = (*EventLog)(nil)

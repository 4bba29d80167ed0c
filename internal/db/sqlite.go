package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/RichardoC/ollamachat/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const (
	KeyOllamaURL = "ollamaUrl"
	KeyModel     = "model"
)

const schema = `
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

// Get returns the stored value, or "" when the key has never been set.
func (db *Database) Get(key string) (string, error) {
	var value string
	err := db.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, nil
}

func (db *Database) Set(key, value string) error {
	_, err := db.db.Exec(`
        INSERT INTO settings (key, value, updated_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to save setting %q: %w", key, err)
	}
	return nil
}

func (db *Database) Delete(key string) error {
	_, err := db.db.Exec(`DELETE FROM settings WHERE key = ?`, key)
	return err
}

// All returns every stored setting.
func (db *Database) All() (map[string]string, error) {
	rows, err := db.db.Query(`SELECT key, value FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list settings: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (db *Database) OllamaURL() (string, error) {
	return db.Get(KeyOllamaURL)
}

// SetOllamaURL validates and stores the backend URL. An empty value clears it.
func (db *Database) SetOllamaURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return db.Delete(KeyOllamaURL)
	}
	normalized, err := models.NormalizeURL(raw)
	if err != nil {
		return err
	}
	return db.Set(KeyOllamaURL, normalized)
}

func (db *Database) Model() (string, error) {
	return db.Get(KeyModel)
}

func (db *Database) SetModel(model string) error {
	model = strings.TrimSpace(model)
	if model == "" {
		return db.Delete(KeyModel)
	}
	return db.Set(KeyModel, model)
}

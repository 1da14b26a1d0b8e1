package history

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var Schema string

// Config selects where the journal lives: a remote libsql database when Url is
// set, a local sqlite file otherwise.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (c Config) Enabled() bool {
	return c.File != "" || c.Url != ""
}

func (c Config) OpenDB() (*sql.DB, error) {
	if c.Url != "" {
		dsn, err := url.Parse(c.Url)
		if err != nil {
			return nil, fmt.Errorf("parse libsql url: %w", err)
		}
		if c.AuthToken != "" {
			query := dsn.Query()
			query.Set("authToken", c.AuthToken)
			dsn.RawQuery = query.Encode()
		}
		return sql.Open("libsql", dsn.String())
	}

	if c.File == "" {
		return nil, fmt.Errorf("a path was not specified")
	}
	if c.File != ":memory:" {
		err := os.MkdirAll(filepath.Dir(c.File), 0755)
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", c.File)
	if err != nil {
		return nil, err
	}
	// ":memory:" is per connection
	db.SetMaxOpenConns(1)
	if c.File != ":memory:" {
		_, err = db.Exec("PRAGMA journal_mode=WAL")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

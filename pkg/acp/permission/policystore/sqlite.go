// Package policystore provides a durable, SQLite-backed
// permission.PolicyStore so allow_always/reject_always decisions
// survive client restarts. It is kept separate from package permission
// so the default in-memory store never pulls in a cgo sqlite driver.
//
// Grounded on internal/orchestrator/acp/sqlite_store.go's
// parameterized-SQL, single-table persistence pattern, generalized from
// log rows to kind->decision rows.
package policystore

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"

	"github.com/brindlewood/acpcore/pkg/acp/permission"
	"github.com/brindlewood/acpcore/pkg/acp/wire"
)

const schema = `
CREATE TABLE IF NOT EXISTS tool_call_policies (
	tool_kind TEXT PRIMARY KEY,
	decision  TEXT NOT NULL
);
`

// SQLite is a sqlx-backed permission.PolicyStore.
type SQLite struct {
	db *sqlx.DB
}

// Open opens (creating if absent) a SQLite-backed policy store at path.
func Open(path string) (*SQLite, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("policystore: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("policystore: migrate schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error { return s.db.Close() }

// Get implements permission.PolicyStore.
func (s *SQLite) Get(kind wire.ToolCallKind) (permission.Decision, bool) {
	var decision string
	err := s.db.Get(&decision, `SELECT decision FROM tool_call_policies WHERE tool_kind = ?`, string(kind))
	if err != nil {
		return "", false
	}
	return permission.Decision(decision), true
}

// Set implements permission.PolicyStore.
func (s *SQLite) Set(kind wire.ToolCallKind, d permission.Decision) error {
	_, err := s.db.Exec(`
		INSERT INTO tool_call_policies (tool_kind, decision) VALUES (?, ?)
		ON CONFLICT(tool_kind) DO UPDATE SET decision = excluded.decision
	`, string(kind), string(d))
	return err
}

// snapshot is the YAML export/import shape, useful for shipping a
// starter policy set alongside a client deployment.
type snapshot struct {
	Policies map[string]string `yaml:"policies"`
}

// ExportYAML serializes every stored policy to YAML.
func (s *SQLite) ExportYAML() ([]byte, error) {
	rows, err := s.db.Queryx(`SELECT tool_kind, decision FROM tool_call_policies`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := snapshot{Policies: make(map[string]string)}
	for rows.Next() {
		var kind, decision string
		if err := rows.Scan(&kind, &decision); err != nil {
			return nil, err
		}
		snap.Policies[kind] = decision
	}
	return yaml.Marshal(snap)
}

// ImportYAML loads a snapshot produced by ExportYAML, upserting every
// entry.
func (s *SQLite) ImportYAML(data []byte) error {
	var snap snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("policystore: parse yaml snapshot: %w", err)
	}
	for kind, decision := range snap.Policies {
		if err := s.Set(wire.ToolCallKind(kind), permission.Decision(decision)); err != nil {
			return err
		}
	}
	return nil
}

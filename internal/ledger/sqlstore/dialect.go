package sqlstore

import (
	"strconv"
	"strings"
)

// dialect holds the per-database differences.
type dialect struct {
	name string // database/sql driver name

	// insertAuto inserts a recognition mark and silently skips it when
	// the (label, day, dedupe_key) constraint is violated.
	insertAuto string

	createMigrations string
	numbered         bool // $1 placeholders instead of ?
}

const insertAutoColumns = "attendance (label, name, day, ts, dedupe_key) VALUES (?, ?, ?, ?, '" + autoKey + "')"

var dialects = map[string]dialect{
	"sqlite": {
		name:       "sqlite3",
		insertAuto: "INSERT INTO " + insertAutoColumns + " ON CONFLICT DO NOTHING",
		createMigrations: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`,
	},
	"postgres": {
		name:       "postgres",
		insertAuto: "INSERT INTO " + insertAutoColumns + " ON CONFLICT DO NOTHING",
		createMigrations: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)`,
		numbered: true,
	},
	"mysql": {
		name:       "mysql",
		insertAuto: "INSERT IGNORE INTO " + insertAutoColumns,
		createMigrations: `CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	},
}

// rebind rewrites ? placeholders for databases that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

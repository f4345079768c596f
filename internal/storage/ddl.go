// ABOUTME: DDL and insert statement generation for each backend dialect.
// ABOUTME: SQLite gets key constraints; ClickHouse gets (Replacing)MergeTree engines.
package storage

import (
	"fmt"
	"strings"
)

func sqliteType(t ColumnType) string {
	switch t {
	case ColInt64:
		return "INTEGER NOT NULL"
	case ColFloat64:
		return "REAL NOT NULL"
	case ColNullInt64:
		return "INTEGER"
	case ColNullFloat64:
		return "REAL"
	case ColNullString:
		return "TEXT"
	default:
		return "TEXT NOT NULL"
	}
}

func clickhouseType(t ColumnType) string {
	switch t {
	case ColInt64:
		return "Int64"
	case ColFloat64:
		return "Float64"
	case ColNullInt64:
		return "Nullable(Int64)"
	case ColNullFloat64:
		return "Nullable(Float64)"
	case ColNullString:
		return "Nullable(String)"
	default:
		return "String"
	}
}

// sqliteDDL returns the statements creating a table and its indexes.
func sqliteDDL(t Table) []string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s", c.Name, sqliteType(c.Type))
		if i < len(t.Columns)-1 || t.Mode != WriteAppend {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	if t.Mode != WriteAppend {
		fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n", strings.Join(t.Key, ", "))
	}
	b.WriteString(")")

	stmts := []string{b.String()}
	if t.Mode == WriteAppend {
		idxCols := append(append([]string{}, t.Key...), t.Version)
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_key ON %s(%s)",
			t.Name, t.Name, strings.Join(idxCols, ", ")))
	}
	if t.Version != "" && t.Mode != WriteAppend {
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_%s ON %s(%s)",
			t.Name, t.Version, t.Name, t.Version))
	}
	return stmts
}

// clickhouseDDL returns the statement creating a table.
func clickhouseDDL(t Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.Name)
	for i, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s", c.Name, clickhouseType(c.Type))
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")\n")

	orderBy := t.Key
	switch t.Mode {
	case WriteAppend:
		b.WriteString("ENGINE = MergeTree\n")
		orderBy = append(append([]string{}, t.Key...), t.Version)
	case WriteUpsert:
		fmt.Fprintf(&b, "ENGINE = ReplacingMergeTree(%s)\n", t.Version)
	default:
		b.WriteString("ENGINE = ReplacingMergeTree\n")
	}
	if t.PartitionBy != "" {
		fmt.Fprintf(&b, "PARTITION BY %s\n", t.PartitionBy)
	}
	fmt.Fprintf(&b, "ORDER BY (%s)", strings.Join(orderBy, ", "))
	return b.String()
}

// sqliteInsert returns the insert statement for a table under its write mode.
func sqliteInsert(t Table) string {
	cols := t.ColumnNames()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.Name, strings.Join(cols, ", "), placeholders)

	switch t.Mode {
	case WriteIgnore:
		stmt += " ON CONFLICT DO NOTHING"
	case WriteUpsert:
		isKey := make(map[string]bool, len(t.Key))
		for _, k := range t.Key {
			isKey[k] = true
		}
		var sets []string
		for _, c := range cols {
			if !isKey[c] {
				sets = append(sets, fmt.Sprintf("%s = excluded.%s", c, c))
			}
		}
		stmt += fmt.Sprintf(" ON CONFLICT(%s) DO UPDATE SET %s WHERE excluded.%s >= %s.%s",
			strings.Join(t.Key, ", "), strings.Join(sets, ", "), t.Version, t.Name, t.Version)
	}
	return stmt
}

// clickhouseInsert returns the batch insert prefix for a table.
func clickhouseInsert(t Table) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", t.Name, strings.Join(t.ColumnNames(), ", "))
}

// keyIndex returns the column position of a single-column key, or -1.
func keyIndex(t Table) int {
	if len(t.Key) != 1 {
		return -1
	}
	for i, c := range t.Columns {
		if c.Name == t.Key[0] {
			return i
		}
	}
	return -1
}

// firstUnseen keeps the first row per key whose key is not in stored.
// stored is extended with every kept key.
func firstUnseen(rows [][]any, idx int, stored map[string]bool) [][]any {
	kept := rows[:0:0]
	for _, r := range rows {
		k := fmt.Sprint(r[idx])
		if stored[k] {
			continue
		}
		stored[k] = true
		kept = append(kept, r)
	}
	return kept
}

// ABOUTME: Tests for per-dialect DDL and insert statement generation.
// ABOUTME: ClickHouse output is checked as text since no server runs in tests.
package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/harperreed/healthlake/internal/models"
)

func TestClickHouseEnginesFollowWriteMode(t *testing.T) {
	ddl := clickhouseDDL(SnapshotTable)
	assert.Contains(t, ddl, "ENGINE = MergeTree")
	assert.Contains(t, ddl, "ORDER BY (user_id, local_date, version)")
	assert.Contains(t, ddl, "weight_kg Nullable(Float64)")

	ddl = clickhouseDDL(BaselineTable)
	assert.Contains(t, ddl, "ENGINE = ReplacingMergeTree(trained_at)")
	assert.Contains(t, ddl, "ORDER BY (pattern_type, stratum, baseline_id)")

	ddl = clickhouseDDL(RawTable(models.DomainWeight))
	assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS raw_weight")
	assert.Contains(t, ddl, "ENGINE = ReplacingMergeTree\n")
	assert.Contains(t, ddl, "PARTITION BY substring(local_date, 1, 7)")
}

func TestSQLiteInsertConflictClauses(t *testing.T) {
	assert.True(t, strings.HasSuffix(sqliteInsert(RecomputeTable), "ON CONFLICT DO NOTHING"))

	upsert := sqliteInsert(CorrelationTable)
	assert.Contains(t, upsert, "ON CONFLICT(corr_key) DO UPDATE SET")
	assert.Contains(t, upsert, "WHERE excluded.trained_at >= behavior_outcome_correlations.trained_at")
	assert.NotContains(t, upsert, "corr_key = excluded.corr_key")

	assert.NotContains(t, sqliteInsert(SnapshotTable), "ON CONFLICT")
}

func TestSQLiteDDLIndexesAppendTables(t *testing.T) {
	stmts := sqliteDDL(RollupTable(models.DomainSleep))
	assert.Len(t, stmts, 2)
	assert.NotContains(t, stmts[0], "PRIMARY KEY")
	assert.Contains(t, stmts[1], "rollup_sleep(user_id, local_date, version)")

	stmts = sqliteDDL(BaselineTable)
	assert.Contains(t, stmts[0], "PRIMARY KEY (pattern_type, stratum, baseline_id)")
}

func TestRawTableNames(t *testing.T) {
	assert.Equal(t, "raw_behavior_factors", RawTable(models.DomainBehaviorFactor).Name)
	assert.Equal(t, "raw_surveys", RawTable(models.DomainSurvey).Name)
	assert.Equal(t, "raw_glucose", RawTable(models.DomainGlucose).Name)
	assert.Len(t, AllTables(), len(models.RawDomains)+len(models.RollupDomains)+5)
}

func TestIgnoreTablesHaveSingleColumnKey(t *testing.T) {
	for _, table := range AllTables() {
		if table.Mode != WriteIgnore {
			continue
		}
		idx := keyIndex(table)
		assert.GreaterOrEqual(t, idx, 0, table.Name)
	}
	assert.Equal(t, -1, keyIndex(SnapshotTable))
	assert.Equal(t, 0, keyIndex(RecomputeTable))
}

func TestFirstUnseenKeepsFirstRowPerKey(t *testing.T) {
	rows := [][]any{
		{"e1", "u1", int64(100)},
		{"e2", "u1", int64(200)},
		{"e1", "u1", int64(300)},
		{"e3", "u2", int64(400)},
	}
	kept := firstUnseen(rows, 0, map[string]bool{"e3": true})
	assert.Equal(t, [][]any{
		{"e1", "u1", int64(100)},
		{"e2", "u1", int64(200)},
	}, kept)
}

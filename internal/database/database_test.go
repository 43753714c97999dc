package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSchemaStatements(t *testing.T) {
	schema := `
-- leading comment
CREATE TABLE a (
    id SERIAL PRIMARY KEY, -- inline
    name TEXT
);
/* block
   comment */
CREATE INDEX IF NOT EXISTS idx_a ON a (name);
`
	statements := parseSchemaStatements(schema)
	require.Len(t, statements, 2)
	assert.Equal(t, "CREATE TABLE a ( id SERIAL PRIMARY KEY, name TEXT )", statements[0])
	assert.True(t, strings.HasPrefix(statements[1], "CREATE INDEX"))
}

func TestEmbeddedSchemaParses(t *testing.T) {
	statements := parseSchemaStatements(schemaSQL)
	require.NotEmpty(t, statements)

	joined := strings.Join(statements, "\n")
	for _, table := range []string{"users", "projects", "topics", "question_bank", "assessment_sessions", "question_history", "topic_scores", "processing_jobs"} {
		assert.Contains(t, joined, "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
	for _, stmt := range statements {
		assert.NotContains(t, stmt, "--")
	}
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	ups, downs := 0, 0
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			ups++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			downs++
		}
	}
	assert.Positive(t, ups)
	assert.Equal(t, ups, downs)
}

func TestExtractDatabaseName(t *testing.T) {
	assert.Equal(t, "trainer", extractDatabaseName("postgres://u:p@localhost:5432/trainer?sslmode=disable"))
	assert.Equal(t, "sales_trainer", extractDatabaseName("host=localhost user=u"))
}

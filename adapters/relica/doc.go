// Package relica provides the SQL implementation of forumwatch.TopicRepository
// using the Relica query builder (github.com/coregx/relica) over database/sql.
//
// Every statement goes through Relica's query builder. The upsert is rendered
// per dialect (ON CONFLICT or ON DUPLICATE KEY). Conditional writes
// (set-created-if-null, claim, mark-posted) are guarded UPDATEs whose
// affected-row count decides who won.
//
// Supported drivers: "postgres" (lib/pq), "sqlite3" (mattn/go-sqlite3) and
// "mysql" (go-sql-driver/mysql, DSN with parseTime=true&loc=UTC).
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/forumwatch"
//	    "github.com/coregx/forumwatch/adapters/relica"
//	    _ "github.com/lib/pq"
//	)
//
//	db, err := sql.Open("postgres", dsn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := forumwatch.ApplyMigrations(ctx, db, "postgres"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repo, err := relica.NewTopicRepository(db, "postgres")
package relica

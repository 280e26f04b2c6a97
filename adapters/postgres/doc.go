// Package postgres provides a native PostgreSQL implementation of
// forumwatch.TopicRepository on top of pgx (github.com/jackc/pgx/v5).
//
// It is selected with database.driver "pgx" and shares its schema with the
// database/sql adapter (forumwatch.MigrationFiles, dialect "postgres").
//
// Example usage:
//
//	pool, err := postgres.Open(ctx, dsn, 4)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := postgres.Migrate(ctx, pool); err != nil {
//	    log.Fatal(err)
//	}
//	repo := postgres.NewTopicRepository(pool)
package postgres

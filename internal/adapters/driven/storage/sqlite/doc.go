// Package sqlite persists documents, chunks, deviation records and vector
// records in a single modernc.org/sqlite database (pure Go, no CGO).
//
// The database lives at <home>/sopctx.db and runs in WAL mode with foreign
// keys on, so deleting a document removes its chunks and vectors. The schema
// is applied from the embedded migrations directory and the applied versions
// are recorded in schema_migrations.
//
// VectorIndex keeps vector records durable while searching an in-memory
// mirror loaded at open. The first open records the dimension and metric;
// later opens with different values fail until ResetVectorIndex is called.
package sqlite

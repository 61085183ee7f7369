// Package postgres implements the storage repositories on PostgreSQL
// using pgx. The schema ships embedded and is applied with golang-migrate.
//
// Chunk IDs are full 64-bit content hashes. They are stored as BIGINT with
// the sign bit flipped so that SQL ordering matches unsigned ID order.
package postgres

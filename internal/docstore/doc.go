// Package docstore persists generated documents in SQLite. The pipeline
// saves each document before marking its prompt complete, so the store is
// the durable record a resume consults implicitly through the state snapshot.
package docstore

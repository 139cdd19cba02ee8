// Package cache stores subtitle records and their downloaded files.
//
// The durable index lives in SQLite (records, media_index, cache_meta) and is
// migrated with goose. An in-memory mirror serves reads under a read lock;
// every mutation writes the database inside a transaction before updating
// the mirror, under the cache's write lock. Downloaded files live in a single
// content directory owned by the cache.
//
// Maintenance removes expired records, trims the content directory to its
// size bound (oldest files first), and sweeps orphans in both directions.
// Maintainer runs it periodically on a gocron scheduler, guarded by a file
// lock so two processes sharing a cache never sweep concurrently.
package cache

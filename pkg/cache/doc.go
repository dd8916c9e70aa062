// Package cache memoizes resolved dependency subtrees per concrete package
// version.
//
// VersionCache is the API used by the resolver. It keys entries by
// "name:version", refuses to store or look up "latest", and applies a TTL
// (24h by default) fixed at write time. Expired entries read as misses.
//
// Physical storage is a Store:
//
//	MemoryStore  process memory, unbounded unless MaxEntries is set
//	RedisStore   shared across instances, Redis expires keys
//	TieredStore  memory in front of Redis, Redis hits are copied into memory
//
// A Janitor purges expired memory entries on a cron schedule.
package cache

// Package cache defines the disk-backed store responsible for translating cache
// keys into <RuntimePath>/<namespace>/<id>.<suffix> files. Entry content is the
// raw value; expiry lives out-of-band in the file's modification time, with a
// pinned sentinel timestamp meaning "never expires". The store has no index and
// no sweeper: expired entries are removed lazily by Get/Exists. Higher layers
// (Cache facade, chain, HTTP routes) address entries through the Store
// interface so that file, memory and composed backends stay interchangeable.
package cache

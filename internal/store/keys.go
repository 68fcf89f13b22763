package store

import "sync"

// keyPool provides reusable byte slices for building lookup keys.
// Only use pooled keys for reads: badger keeps the key slice passed to
// txn.Set until the transaction commits.
var keyPool = sync.Pool{
	New: func() any {
		// Prefix (4-8 bytes) + "idx:" + index name + value/ID (21+ bytes for NanoID).
		return make([]byte, 0, 128)
	},
}

// buildKey constructs a lookup key from prefix and suffix using a pooled buffer.
// Callers MUST call releaseKey when done with the key.
//
//	key := buildKey("room:", roomID)
//	defer releaseKey(key)
//	item, err := txn.Get(key)
func buildKey(prefix, suffix string) []byte {
	buf, _ := keyPool.Get().([]byte)
	buf = buf[:0]
	buf = append(buf, prefix...)
	buf = append(buf, suffix...)
	return buf
}

// releaseKey returns a key buffer to the pool for reuse.
func releaseKey(key []byte) {
	// Avoid keeping oversized buffers in the pool.
	if cap(key) <= 512 {
		keyPool.Put(key[:0])
	}
}

// indexKey is the key of a unique index entry: {prefix}idx:{name}:{value} -> id.
func indexKey(prefix, name, value string) string {
	return prefix + "idx:" + name + ":" + value
}

// multiIndexPrefix is the scan prefix of a non-unique index: {prefix}idx:{name}:{value}:
func multiIndexPrefix(prefix, name, value string) string {
	return prefix + "idx:" + name + ":" + value + ":"
}

// multiIndexKey is one entry of a non-unique index: {prefix}idx:{name}:{value}:{id} -> empty.
func multiIndexKey(prefix, name, value, id string) string {
	return multiIndexPrefix(prefix, name, value) + id
}

// Package store provides durable key-value persistence for the sync
// client. The cache and outbound queue are built on the KV capability
// so the core stays portable to any backend with get/set/delete
// semantics.
package store

import "errors"

// ErrKeyNotFound is returned by Get for keys with no stored value.
var ErrKeyNotFound = errors.New("key not found")

// KV is the persistence capability the core depends on. Writes are
// atomic per key: a failed write must not corrupt a previously-good
// value.
type KV interface {
	Get(key string) ([]byte, error)
	Set(key string, value []byte) error
	Delete(key string) error
	Close() error
}

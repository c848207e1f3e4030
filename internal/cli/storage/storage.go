// Package storage provides the durable key/value medium the CLI keeps its
// session in. Implementations are synchronous and per-key: a Store gives no
// guarantee that two Set calls are observed together. Callers that need a
// multi-key invariant must impose their own critical section.
package storage

import (
	"fmt"
	"strings"
)

// Store is the durable storage primitive.
type Store interface {
	// Get returns the value for key. A missing key reports ok=false and a nil error.
	Get(key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(key string) error
}

// Error wraps a failure of the underlying medium.
type Error struct {
	Op  string
	Key string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// namespaced prefixes every key so several environments can share one medium.
type namespaced struct {
	prefix string
	inner  Store
}

// Namespace returns a Store that stores keys under "<prefix>/<key>" in inner.
func Namespace(inner Store, prefix string) Store {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return inner
	}
	return &namespaced{prefix: prefix, inner: inner}
}

func (n *namespaced) key(k string) string {
	return n.prefix + "/" + k
}

func (n *namespaced) Get(key string) (string, bool, error) {
	return n.inner.Get(n.key(key))
}

func (n *namespaced) Set(key, value string) error {
	return n.inner.Set(n.key(key), value)
}

func (n *namespaced) Remove(key string) error {
	return n.inner.Remove(n.key(key))
}

package redis

import "strings"

// DefaultKeyspace prefixes every key this service writes.
const DefaultKeyspace Keyspace = "rp"

// Keyspace builds colon-separated keys under a fixed namespace. A zero
// Keyspace behaves like DefaultKeyspace.
type Keyspace string

func (k Keyspace) Idempotency(scope, id string) string {
	return k.join("idempotency", scope, id)
}

func (k Keyspace) RateLimit(scope string) string {
	return k.join("rate_limit", scope)
}

func (k Keyspace) Lock(name string) string {
	return k.join("lock", name)
}

func (k Keyspace) join(parts ...string) string {
	ns := string(k)
	if ns == "" {
		ns = string(DefaultKeyspace)
	}
	var b strings.Builder
	b.WriteString(ns)
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

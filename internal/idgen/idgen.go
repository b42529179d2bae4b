// Package idgen generates globally unique, k-ordered, optionally prefixed
// identifiers used for lock owner IDs.
package idgen

import (
	"fmt"
	"time"

	"github.com/rs/xid"
)

// New generates a globally unique ID.
func New() string {
	return xid.NewWithTime(time.Now().UTC()).String()
}

// Generator generates prefixed IDs in the form "<prefix>/<id>".
type Generator struct {
	prefix string
}

// NewGenerator creates a Generator that prefixes every generated ID with
// prefix. An empty prefix generates bare IDs.
func NewGenerator(prefix string) *Generator {
	return &Generator{prefix: prefix}
}

// Generate generates a prefixed globally unique ID.
func (g *Generator) Generate() string {
	id := New()
	if len(g.prefix) == 0 {
		return id
	}
	return fmt.Sprintf("%s/%s", g.prefix, id)
}

// Package matcher resolves a concrete NATS subject against a set of
// registered wildcard subject patterns, following NATS specificity rules:
// a literal match beats a `*` single-token wildcard, which beats a `>`
// tail wildcard at the same depth; deeper matches beat shallower ones.
package matcher

import "github.com/connectionloops/cloops.nats/errors"

const (
	tokenWildcard = "*"
	tokenTail     = ">"
)

const (
	kindTail = iota
	kindExact
)

type node struct {
	children map[string]*node
	star     *node

	hasTail     bool
	tailPattern string
	tailSeq     int

	hasExact     bool
	exactPattern string
	exactSeq     int
}

func newNode() *node {
	return &node{children: make(map[string]*node)}
}

// Matcher is an immutable trie over `.`-tokenized subject patterns. It's
// built once via New and is safe for unlimited concurrent reads
// thereafter - nothing mutates it after construction, so no locking is
// needed on the hot path.
type Matcher struct {
	root *node
}

// New builds a Matcher from patterns, in the order given. Insertion order
// only matters as the final tie-break, when two patterns of identical
// depth, wildcard count, and kind (both exact, or both tail) would
// otherwise match a given subject equally well: the most recently
// inserted one wins.
func New(patterns ...string) (*Matcher, error) {
	m := &Matcher{root: newNode()}
	for i, p := range patterns {
		if err := m.insert(p, i); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Matcher) insert(pattern string, seq int) error {
	if pattern == "" {
		return errors.New("matcher: pattern must not be empty")
	}

	cur := m.root
	tokens := tokenize(pattern)
	for i, tok := range tokens {
		t := pattern[tok.start:tok.end]
		if t == "" {
			// Empty tokens (from a leading/trailing/doubled '.') are
			// skipped defensively, per spec.
			continue
		}
		if t == tokenTail {
			// `>` is always terminal; further tokens, if any, are
			// ignored.
			cur.hasTail = true
			cur.tailPattern = pattern
			cur.tailSeq = seq
			return nil
		}

		if t == tokenWildcard {
			if cur.star == nil {
				cur.star = newNode()
			}
			cur = cur.star
		} else {
			child, ok := cur.children[t]
			if !ok {
				child = newNode()
				cur.children[t] = child
			}
			cur = child
		}

		if i == len(tokens)-1 {
			cur.hasExact = true
			cur.exactPattern = pattern
			cur.exactSeq = seq
		}
	}
	return nil
}

type tokenRange struct {
	start, end int
}

// tokenize returns index ranges over subject rather than allocating
// substrings, keeping the hot matching path allocation-frugal.
func tokenize(subject string) []tokenRange {
	tokens := make([]tokenRange, 0, 8)
	start := 0
	for i := 0; i < len(subject); i++ {
		if subject[i] == '.' {
			tokens = append(tokens, tokenRange{start, i})
			start = i + 1
		}
	}
	tokens = append(tokens, tokenRange{start, len(subject)})
	return tokens
}

// candidate is a potential match found somewhere in the trie: a pattern,
// the input-token depth at which it was found, how many `*` descents were
// taken to reach it, whether it was an exact terminal or a `>` tail, and
// its insertion sequence.
type candidate struct {
	pattern   string
	depth     int
	wildcards int
	kind      int
	seq       int
	ok        bool
}

// better reports whether b should replace a as the current best match:
// greatest depth wins; at equal depth, fewer `*` descents wins (a literal
// token is more specific than a wildcard at the same position, per NATS
// subject specificity rules); at equal depth and wildcard count, exact
// beats tail; only once all of those tie does the most recently inserted
// pattern win.
func better(a, b candidate) bool {
	if !a.ok {
		return true
	}
	if b.depth != a.depth {
		return b.depth > a.depth
	}
	if b.wildcards != a.wildcards {
		return b.wildcards < a.wildcards
	}
	if b.kind != a.kind {
		return b.kind > a.kind
	}
	return b.seq > a.seq
}

// Match resolves subject against the registered patterns, returning the
// most specific matching pattern, or ok=false if none match. subject must
// be a concrete subject (no wildcards).
func (m *Matcher) Match(subject string) (pattern string, ok bool) {
	tokens := tokenize(subject)
	best := m.walk(m.root, tokens, subject, 0, 0)
	return best.pattern, best.ok
}

func (m *Matcher) walk(n *node, tokens []tokenRange, subject string, index, wildcards int) candidate {
	var best candidate

	// `>` matches one or more remaining tokens, never zero.
	if n.hasTail && index < len(tokens) {
		cand := candidate{pattern: n.tailPattern, depth: index, wildcards: wildcards, kind: kindTail, seq: n.tailSeq, ok: true}
		if better(best, cand) {
			best = cand
		}
	}

	if index == len(tokens) {
		if n.hasExact {
			cand := candidate{pattern: n.exactPattern, depth: index, wildcards: wildcards, kind: kindExact, seq: n.exactSeq, ok: true}
			if better(best, cand) {
				best = cand
			}
		}
		return best
	}

	tok := tokens[index]
	t := subject[tok.start:tok.end]

	if child, ok := n.children[t]; ok {
		if sub := m.walk(child, tokens, subject, index+1, wildcards); better(best, sub) {
			best = sub
		}
	}
	if n.star != nil {
		if sub := m.walk(n.star, tokens, subject, index+1, wildcards+1); better(best, sub) {
			best = sub
		}
	}

	return best
}

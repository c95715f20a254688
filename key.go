package callapi

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// defaultDedupeHeaders are the headers that participate in the default
// dedupe key. Two requests differing only in headers outside this set
// normalize to the same key.
var defaultDedupeHeaders = []string{"Authorization", "Accept", "Content-Type"}

// DefaultDedupeKeyFunc builds a key from the method, URL and the
// participating headers, plus a digest of the serialized body for
// body-bearing requests. It is a pure function of its inputs: header
// insertion order and casing never change the key, and it cannot fail —
// a request with no readable body degrades to a method+URL key.
func DefaultDedupeKeyFunc(req *Request) string {
	return dedupeKey(req, defaultDedupeHeaders)
}

// DedupeKeyWithHeaders returns a key function like DefaultDedupeKeyFunc but
// with a caller-chosen header participation set.
func DedupeKeyWithHeaders(headers ...string) DedupeKeyFunc {
	participating := make([]string, len(headers))
	copy(participating, headers)
	return func(req *Request) string {
		return dedupeKey(req, participating)
	}
}

func dedupeKey(req *Request, participating []string) string {
	h := xxhash.New()
	_, _ = h.WriteString(req.Method)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(req.URL)

	if req.Header != nil && len(participating) > 0 {
		pairs := make([]string, 0, len(participating))
		for _, name := range participating {
			values := req.Header.Values(name)
			if len(values) == 0 {
				continue
			}
			pairs = append(pairs, strings.ToLower(name)+":"+strings.Join(values, ","))
		}
		// Stable order regardless of the participation set's declaration order.
		sort.Strings(pairs)
		for _, p := range pairs {
			_, _ = h.WriteString("\x00")
			_, _ = h.WriteString(p)
		}
	}

	if len(req.body) > 0 {
		digest := sha256.Sum256(req.body)
		_, _ = h.Write(digest[:])
	}

	return fmt.Sprintf("%x", h.Sum64())
}

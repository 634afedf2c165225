// Package feed owns fetching and parsing one source's RSS/Atom feed and
// deciding whether its newest entry is novel.
package feed

import (
	"encoding/json"
	"hash/fnv"
	"strconv"

	"github.com/mmcdole/gofeed"
)

// fingerprintFields is the canonical encoding hashed into an entry
// fingerprint. Field order is fixed and empty fields are omitted, so the
// same entry always serializes to the same bytes regardless of process or
// feed formatting.
type fingerprintFields struct {
	Link      string `json:"link,omitempty"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Title     string `json:"title,omitempty"`
	Updated   string `json:"updated,omitempty"`
}

// Fingerprint hashes the observable fields of a feed entry with FNV-1a.
func Fingerprint(item *gofeed.Item) uint64 {
	fields := fingerprintFields{
		Link:      item.Link,
		Published: item.Published,
		Summary:   item.Description,
		Title:     item.Title,
		Updated:   item.Updated,
	}
	data, _ := json.Marshal(fields)
	h := fnv.New64a()
	h.Write(data)
	return h.Sum64()
}

// FingerprintKey is the cache key form of a fingerprint.
func FingerprintKey(fp uint64) string {
	return strconv.FormatUint(fp, 10)
}

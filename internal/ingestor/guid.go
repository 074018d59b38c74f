package ingestor

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/jmylchreest/releasarr/internal/titlenorm"
)

// maxGUIDLength matches the releases.guid column size.
const maxGUIDLength = 512

// GUIDPolicy computes the stable identity of a feed item.
type GUIDPolicy struct {
	// TimeBucket is the width publish times are truncated to in the
	// composite fallback.
	TimeBucket time.Duration
	// SizeBucket is the width in bytes sizes are divided by in the
	// composite fallback.
	SizeBucket int64
}

// DefaultGUIDPolicy returns the policy with one hour and one MiB buckets.
func DefaultGUIDPolicy() GUIDPolicy {
	return GUIDPolicy{TimeBucket: time.Hour, SizeBucket: 1 << 20}
}

// GUID returns the stable identity of item. It never returns "".
//
// Priority: provider id (unless it is just the title), info hash, download
// url, link, provider guid, then normalized-title|size-bucket|time-bucket.
func (p GUIDPolicy) GUID(item FeedItem) string {
	title := strings.TrimSpace(item.Title)

	if id := strings.TrimSpace(item.ProviderID); id != "" && id != title {
		return clampGUID(id)
	}
	if hash := strings.ToLower(strings.TrimSpace(item.InfoHash)); hash != "" {
		return clampGUID(hash)
	}
	for _, candidate := range []string{item.DownloadURL, item.Link, item.GUID} {
		if v := strings.TrimSpace(candidate); v != "" {
			return clampGUID(v)
		}
	}
	return clampGUID(p.composite(item))
}

func (p GUIDPolicy) composite(item FeedItem) string {
	var size, published string
	if item.SizeBytes != nil {
		bucket := p.SizeBucket
		if bucket <= 0 {
			bucket = 1
		}
		size = strconv.FormatInt(*item.SizeBytes/bucket, 10)
	}
	if item.PublishedAt != nil {
		t := item.PublishedAt.UTC()
		if p.TimeBucket > 0 {
			t = t.Truncate(p.TimeBucket)
		}
		published = t.Format(time.RFC3339)
	}
	return titlenorm.NormalizeStrict(item.Title) + "|" + size + "|" + published
}

// clampGUID hashes identities that do not fit the guid column.
func clampGUID(guid string) string {
	if len(guid) <= maxGUIDLength {
		return guid
	}
	sum := sha256.Sum256([]byte(guid))
	return "sha256:" + hex.EncodeToString(sum[:])
}

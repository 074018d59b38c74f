package ingestor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGUIDPolicy_Priority(t *testing.T) {
	p := DefaultGUIDPolicy()
	full := FeedItem{
		ProviderID:  "prov-42",
		InfoHash:    "ABCDEF0123",
		DownloadURL: "https://idx.example/dl/1",
		Link:        "https://idx.example/t/1",
		GUID:        "feed-guid-1",
		Title:       "Harbor Lights 2003 1080p",
	}

	tests := []struct {
		name   string
		mutate func(*FeedItem)
		want   string
	}{
		{"provider id", func(*FeedItem) {}, "prov-42"},
		{"provider id equal to title is ignored", func(i *FeedItem) { i.ProviderID = i.Title }, "abcdef0123"},
		{"info hash lowercased", func(i *FeedItem) { i.ProviderID = "" }, "abcdef0123"},
		{"download url", func(i *FeedItem) { i.ProviderID, i.InfoHash = "", "" }, "https://idx.example/dl/1"},
		{"link", func(i *FeedItem) { i.ProviderID, i.InfoHash, i.DownloadURL = "", "", "" }, "https://idx.example/t/1"},
		{"feed guid", func(i *FeedItem) { i.ProviderID, i.InfoHash, i.DownloadURL, i.Link = "", "", "", "" }, "feed-guid-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := full
			tt.mutate(&item)
			assert.Equal(t, tt.want, p.GUID(item))
		})
	}
}

func TestGUIDPolicy_Composite(t *testing.T) {
	p := DefaultGUIDPolicy()
	size := int64(3*(1<<20) + 512)
	published := time.Date(2024, 3, 1, 10, 42, 0, 0, time.UTC)

	item := FeedItem{Title: "Harbor.Lights.2003.1080p", SizeBytes: &size, PublishedAt: &published}
	assert.Equal(t, "harbor lights 2003 1080p|3|2024-03-01T10:00:00Z", p.GUID(item))

	// Same hour, same size bucket: same identity.
	later := published.Add(10 * time.Minute)
	sizeNear := size + 100
	assert.Equal(t, p.GUID(item), p.GUID(FeedItem{Title: "Harbor Lights 2003 1080p", SizeBytes: &sizeNear, PublishedAt: &later}))

	// Narrower bucket splits them.
	narrow := GUIDPolicy{TimeBucket: time.Minute, SizeBucket: 1 << 20}
	assert.NotEqual(t, narrow.GUID(item), narrow.GUID(FeedItem{Title: item.Title, SizeBytes: &size, PublishedAt: &later}))
}

func TestGUIDPolicy_NeverEmpty(t *testing.T) {
	p := DefaultGUIDPolicy()
	assert.NotEmpty(t, p.GUID(FeedItem{}))
	assert.NotEmpty(t, p.GUID(FeedItem{Title: "   "}))
}

func TestGUIDPolicy_LongIdentityIsHashed(t *testing.T) {
	p := DefaultGUIDPolicy()
	long := "https://idx.example/dl?" + strings.Repeat("x", 600)

	guid := p.GUID(FeedItem{DownloadURL: long})
	assert.True(t, strings.HasPrefix(guid, "sha256:"))
	assert.LessOrEqual(t, len(guid), maxGUIDLength)
	assert.Equal(t, guid, p.GUID(FeedItem{DownloadURL: long}))
}

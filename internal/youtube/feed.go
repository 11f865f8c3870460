package youtube

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/mmcdole/gofeed"
)

// ErrNoEntries is returned when a feed parses but contains no video entry.
var ErrNoEntries = errors.New("feed contains no video entries")

// Notification is the video data extracted from one Atom feed push.
type Notification struct {
	VideoID     string
	ChannelID   string
	Title       string
	ChannelName string
	Published   time.Time
}

// IsDeletionNotice reports whether the payload is a deleted-entry notice.
// The hub sends these when a video is removed; they are not feed entries
// and must not be recorded as events.
func IsDeletionNotice(body []byte) bool {
	return bytes.Contains(body, []byte("at:deleted-entry"))
}

// ParseNotification extracts the first video entry from an Atom feed
// payload. YouTube namespaces the video and channel IDs under the yt
// extension.
func ParseNotification(body []byte) (*Notification, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return nil, ErrNoEntries
	}

	item := feed.Items[0]
	n := &Notification{
		VideoID:   extensionValue(item, "videoId"),
		ChannelID: extensionValue(item, "channelId"),
		Title:     item.Title,
	}
	if n.VideoID == "" {
		return nil, ErrNoEntries
	}
	if item.Author != nil {
		n.ChannelName = item.Author.Name
	}
	if item.PublishedParsed != nil {
		n.Published = item.PublishedParsed.UTC()
	}
	return n, nil
}

func extensionValue(item *gofeed.Item, name string) string {
	exts, ok := item.Extensions["yt"][name]
	if !ok || len(exts) == 0 {
		return ""
	}
	return exts[0].Value
}

package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Parser turns notification and poll payloads (Atom documents) into Events.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

// Run parses a feed payload into zero or more Events. A payload that is not
// a structurally valid feed returns an error; entries missing an item id or
// link are skipped individually.
func (p *Parser) Run(data []byte) ([]Event, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	feedChannelID := extensionValue(parsed.Extensions, "yt", "channelId")

	events := make([]Event, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		ev := p.normalizeItem(item, feedChannelID)
		if ev.ItemID == "" || ev.URL == "" {
			continue
		}
		events = append(events, ev)
	}

	return events, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, feedChannelID string) Event {
	ev := Event{
		ItemID:    cmp.Or(extensionValue(item.Extensions, "yt", "videoId"), videoIDFromGUID(item.GUID)),
		Title:     item.Title,
		URL:       item.Link,
		ChannelID: cmp.Or(extensionValue(item.Extensions, "yt", "channelId"), feedChannelID),
	}

	if item.PublishedParsed != nil {
		ev.PublishedAt = *item.PublishedParsed
	}

	if len(item.Authors) > 0 && item.Authors[0] != nil {
		ev.Author = item.Authors[0].Name
	} else if item.Author != nil {
		ev.Author = item.Author.Name
	}

	return ev
}

func extensionValue(extensions ext.Extensions, space, name string) string {
	values, ok := extensions[space][name]
	if !ok || len(values) == 0 {
		return ""
	}
	return values[0].Value
}

// videoIDFromGUID extracts the item id from an Atom GUID of the form
// "yt:video:<id>"; anything else is returned as-is.
func videoIDFromGUID(guid string) string {
	if idx := strings.LastIndex(guid, ":"); idx >= 0 {
		return guid[idx+1:]
	}
	return guid
}

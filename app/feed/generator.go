package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/manga-notifier/app/database"
)

// Channel describes the feed a set of detected chapters is rendered into.
// An empty HID is the combined feed of every tracked manga.
type Channel struct {
	HID    string
	Title  string
	Titles map[string]string
}

type Generator struct {
	baseURL string
	version string
}

func NewGenerator(baseURL, version string) *Generator {
	return &Generator{
		baseURL: strings.TrimRight(baseURL, "/"),
		version: version,
	}
}

func (g *Generator) Run(channel Channel, chapters []database.DetectedChapter, now time.Time) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	selfLink := g.baseURL + "/feeds"
	if channel.HID != "" {
		selfLink = fmt.Sprintf("%s/feeds/%s", g.baseURL, channel.HID)
	}

	title := channel.Title
	if title == "" {
		title = "New manga chapters"
	}

	g.writeElement(&buf, "title", title, 4)
	g.writeElement(&buf, "link", selfLink, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("Chapters detected for %s", title), 4)
	buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
		html.EscapeString(selfLink)))

	lastBuildDate := now
	if len(chapters) > 0 {
		lastBuildDate = chapters[0].DetectedAt
	}

	g.writeElement(&buf, "lastBuildDate", lastBuildDate.Format(time.RFC1123Z), 4)
	g.writeElement(&buf, "generator", fmt.Sprintf("MangaNotifier/%s", g.version), 4)

	for _, chapter := range chapters {
		g.writeItem(&buf, chapter, channel.mangaTitle(chapter.HID))
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (c Channel) mangaTitle(hid string) string {
	if title, ok := c.Titles[hid]; ok && title != "" {
		return title
	}
	if c.HID == hid && c.Title != "" {
		return c.Title
	}
	return "Manga " + hid
}

func (g *Generator) writeItem(buf *bytes.Buffer, chapter database.DetectedChapter, mangaTitle string) {
	buf.WriteString("    <item>\n")

	guid := fmt.Sprintf("%s:%s:%d", chapter.HID, chapter.Chap, chapter.ChapterID)
	buf.WriteString("      <guid isPermaLink=\"false\">")
	xml.EscapeText(buf, []byte(guid))
	buf.WriteString("</guid>\n")

	itemTitle := fmt.Sprintf("%s Ch. %s", mangaTitle, chapter.Chap)
	if chapter.Title != "" {
		itemTitle += ": " + chapter.Title
	}
	g.writeElement(buf, "title", itemTitle, 6)

	description := fmt.Sprintf("Chapter %s of %s", chapter.Chap, mangaTitle)
	if len(chapter.GroupName) > 0 {
		description += " by " + strings.Join(chapter.GroupName, ", ")
	}
	g.writeElement(buf, "description", description, 6)

	g.writeElement(buf, "pubDate", chapter.DetectedAt.Format(time.RFC1123Z), 6)

	for _, group := range chapter.GroupName {
		if group != "" {
			g.writeElement(buf, "category", group, 6)
		}
	}

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}

	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

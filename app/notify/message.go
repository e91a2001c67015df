package notify

import (
	"fmt"
	"strings"

	"github.com/lysyi3m/manga-notifier/app/database"
)

const NotificationTitle = "📖 New Chapter 📖"

// ComposeMessage builds the push title and body for a batch of new chapters
func ComposeMessage(mangaTitle string, chapters []database.NewChapter) (string, string) {
	titles := chapterTitles(chapters)

	if len(chapters) == 1 {
		if len(titles) > 0 {
			return NotificationTitle, fmt.Sprintf("A new chapter has arrived: • %s • %s", mangaTitle, titles[0])
		}
		return NotificationTitle, fmt.Sprintf("A new chapter has arrived: • %s •", mangaTitle)
	}

	if len(titles) > 0 {
		return NotificationTitle, fmt.Sprintf("New chapters have arrived: • %s • %s", mangaTitle, strings.Join(titles, " • "))
	}

	return NotificationTitle, fmt.Sprintf("New chapters have arrived: • %s • Chapters %s", mangaTitle, chapterNumbers(chapters))
}

func chapterTitles(chapters []database.NewChapter) []string {
	var titles []string
	for _, ch := range chapters {
		if title := strings.TrimSpace(ch.Title); title != "" {
			titles = append(titles, title)
		}
	}
	return titles
}

func chapterNumbers(chapters []database.NewChapter) string {
	numbers := make([]string, 0, len(chapters))
	for _, ch := range chapters {
		numbers = append(numbers, "Ch. "+ch.Chap)
	}
	return strings.Join(numbers, ", ")
}

// chapterList is the "chapters" data field: titles when present, numbers otherwise
func chapterList(chapters []database.NewChapter) string {
	if titles := chapterTitles(chapters); len(titles) > 0 {
		return strings.Join(titles, " • ")
	}
	return chapterNumbers(chapters)
}

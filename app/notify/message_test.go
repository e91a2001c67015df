package notify

import (
	"testing"

	"github.com/lysyi3m/manga-notifier/app/database"
)

func TestComposeMessage(t *testing.T) {
	tests := []struct {
		name     string
		chapters []database.NewChapter
		expected string
	}{
		{
			name:     "single with title",
			chapters: []database.NewChapter{{Chap: "5", Title: " The Storm "}},
			expected: "A new chapter has arrived: • One Piece • The Storm",
		},
		{
			name:     "single without title",
			chapters: []database.NewChapter{{Chap: "5"}},
			expected: "A new chapter has arrived: • One Piece •",
		},
		{
			name:     "several with titles",
			chapters: []database.NewChapter{{Chap: "5", Title: "A"}, {Chap: "6"}, {Chap: "7", Title: "B"}},
			expected: "New chapters have arrived: • One Piece • A • B",
		},
		{
			name:     "several without titles",
			chapters: []database.NewChapter{{Chap: "5"}, {Chap: "6"}},
			expected: "New chapters have arrived: • One Piece • Chapters Ch. 5, Ch. 6",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body := ComposeMessage("One Piece", tt.chapters)
			if title != NotificationTitle {
				t.Errorf("Expected title %q, got %q", NotificationTitle, title)
			}
			if body != tt.expected {
				t.Errorf("Expected body %q, got %q", tt.expected, body)
			}
		})
	}
}

func TestChapterList(t *testing.T) {
	if got := chapterList([]database.NewChapter{{Chap: "1"}, {Chap: "2"}}); got != "Ch. 1, Ch. 2" {
		t.Errorf("Expected chapter numbers, got %q", got)
	}
	if got := chapterList([]database.NewChapter{{Chap: "1", Title: "X"}}); got != "X" {
		t.Errorf("Expected chapter titles, got %q", got)
	}
}

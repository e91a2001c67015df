package comick

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Chapter is one entry of the source's chapter list
type Chapter struct {
	ID        int64    `json:"id"`
	Chap      string   `json:"chap"`
	Title     string   `json:"title"`
	CreatedAt string   `json:"created_at"`
	GroupName []string `json:"group_name"`
}

// UnmarshalJSON accepts chap as a string, a number or null.
func (c *Chapter) UnmarshalJSON(data []byte) error {
	type alias Chapter
	aux := struct {
		Chap json.RawMessage `json:"chap"`
		*alias
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	chap, err := parseChap(aux.Chap)
	if err != nil {
		return err
	}
	c.Chap = chap

	return nil
}

func parseChap(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", fmt.Errorf("invalid chap: %w", err)
		}
		return s, nil
	}

	if _, err := strconv.ParseFloat(string(raw), 64); err != nil {
		return "", fmt.Errorf("invalid chap %s", raw)
	}
	return string(raw), nil
}

// MangaInfo is the resolution of a client manga id
type MangaInfo struct {
	HID   string `json:"hid"`
	Title string `json:"title"`
}

type chaptersResponse struct {
	Chapters *[]Chapter `json:"chapters"`
}

type comicResponse struct {
	Comic struct {
		HID   string `json:"hid"`
		Title string `json:"title"`
	} `json:"comic"`
}

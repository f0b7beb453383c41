// Package pagination holds the cursor codecs adapters use internally. Encoded
// cursors are opaque to everything outside the adapter that issued them.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

type offsetCursor struct {
	Offset int `json:"offset"`
}

type tokenCursor struct {
	Token string `json:"token"`
}

// EncodeOffset packs a numeric offset into an opaque cursor string.
func EncodeOffset(offset int) string {
	if offset < 0 {
		offset = 0
	}
	return encode(offsetCursor{Offset: offset})
}

// DecodeOffset unpacks a cursor produced by EncodeOffset. An empty cursor
// means the first page.
func DecodeOffset(cursor string) (int, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return 0, nil
	}
	var decoded offsetCursor
	if err := decode(cursor, &decoded); err != nil {
		return 0, err
	}
	if decoded.Offset < 0 {
		return 0, fmt.Errorf("pagination: invalid cursor: negative offset")
	}
	return decoded.Offset, nil
}

// EncodeToken packs a provider-native continuation token into an opaque
// cursor string.
func EncodeToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" {
		return ""
	}
	return encode(tokenCursor{Token: token})
}

// DecodeToken unpacks a cursor produced by EncodeToken.
func DecodeToken(cursor string) (string, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return "", nil
	}
	var decoded tokenCursor
	if err := decode(cursor, &decoded); err != nil {
		return "", err
	}
	return decoded.Token, nil
}

func encode(payload any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decode(cursor string, target any) error {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return fmt.Errorf("pagination: invalid cursor: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("pagination: invalid cursor: %w", err)
	}
	return nil
}

package botconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// File reads {"telegram": {"bot_token": ..., "admin_chat_ids": [...]}}.
// A missing file yields no config.
type File struct {
	Path string
}

type adminFile struct {
	Telegram struct {
		BotToken     string  `json:"bot_token"`
		AdminChatIDs chatIDs `json:"admin_chat_ids"`
	} `json:"telegram"`
}

// chatIDs accepts an array of strings or numbers, or one comma separated
// string.
type chatIDs []string

func (c *chatIDs) UnmarshalJSON(data []byte) error {
	var list []json.RawMessage
	if err := json.Unmarshal(data, &list); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("admin_chat_ids: %w", err)
		}
		*c = splitIDs([]string{s})
		return nil
	}
	out := make([]string, 0, len(list))
	for _, raw := range list {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			out = append(out, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return fmt.Errorf("admin_chat_ids: %s is not an id", raw)
		}
		if i, err := n.Int64(); err == nil {
			out = append(out, strconv.FormatInt(i, 10))
		} else {
			out = append(out, n.String())
		}
	}
	*c = splitIDs(out)
	return nil
}

func (f File) Load(context.Context) (*BotConfig, error) {
	if f.Path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Path, err)
	}
	var doc adminFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.Path, err)
	}
	token := strings.TrimSpace(doc.Telegram.BotToken)
	if token == "" {
		return nil, nil
	}
	return &BotConfig{Token: token, AdminChatIDs: doc.Telegram.AdminChatIDs, Source: f.Path}, nil
}

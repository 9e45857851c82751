package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// SessionCookie is one entry of a storage-state document's cookies array.
type SessionCookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

type storageState struct {
	Cookies []json.RawMessage `json:"cookies"`
}

// LoadSessionCookies reads the cookies of a storage-state file. A missing
// file yields no cookies and no error. Malformed entries are skipped.
func LoadSessionCookies(path string) ([]SessionCookie, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session state: %w", err)
	}

	var state storageState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode session state: %w", err)
	}

	cookies := make([]SessionCookie, 0, len(state.Cookies))
	for _, raw := range state.Cookies {
		var c SessionCookie
		if err := json.Unmarshal(raw, &c); err != nil {
			continue
		}
		c.Name = strings.TrimSpace(c.Name)
		c.Value = strings.TrimSpace(c.Value)
		c.Domain = strings.TrimSpace(c.Domain)
		c.Path = strings.TrimSpace(c.Path)
		if c.Name == "" {
			continue
		}
		if c.Path == "" {
			c.Path = "/"
		}
		cookies = append(cookies, c)
	}
	return cookies, nil
}

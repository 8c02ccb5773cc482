package omakase

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
)

// cookieStore persists the session cookie jar between process runs as an
// opaque name -> value JSON file. Every failure mode degrades to "no
// prior session", a restart must never be blocked by a bad cookie file.
type cookieStore struct {
	path string
}

func (s cookieStore) load() map[string]string {
	if s.path == "" {
		return nil
	}
	contents, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("failed to read cookie file", "path", s.path, "err", err)
		}
		return nil
	}
	var cookies map[string]string
	err = json.Unmarshal(contents, &cookies)
	if err != nil {
		slog.Warn("failed to parse cookie file", "path", s.path, "err", err)
		return nil
	}
	return cookies
}

func (s cookieStore) save(cookies []*http.Cookie) {
	if s.path == "" {
		return
	}
	kv := make(map[string]string, len(cookies))
	for _, c := range cookies {
		kv[c.Name] = c.Value
	}
	contents, err := json.Marshal(kv)
	if err != nil {
		slog.Error("failed to encode cookies", "err", err)
		return
	}
	err = os.WriteFile(s.path, contents, 0600)
	if err != nil {
		slog.Error("failed to write cookie file", "path", s.path, "err", err)
		return
	}
	slog.Info("saved session cookies", "path", s.path, "count", len(kv))
}

package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dkeye/callbroker/internal/domain"
)

var errNoFallback = errors.New("no fallback endpoint configured")

// FallbackURL is the one-shot delivery endpoint of client in room.
func FallbackURL(base string, room domain.RoomID, client domain.ClientID) string {
	return fmt.Sprintf("%s/api/rooms/%s/%s", strings.TrimRight(base, "/"),
		url.PathEscape(string(room)), url.PathEscape(string(client)))
}

func (t *Transport) post(ctx context.Context, room domain.RoomID, client domain.ClientID, body []byte) error {
	if t.cfg.HTTPURL == "" {
		return errNoFallback
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, FallbackURL(t.cfg.HTTPURL, room, client), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("fallback %s: %s", req.URL.Path, resp.Status)
	}
	return nil
}

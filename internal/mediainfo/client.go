// Package mediainfo talks to pivid_server, which reports metadata about the
// media files it serves, such as the duration of a clip.
package mediainfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/xsync"
)

// FileMeta is the part of the /media/<file> response used here.
type FileMeta struct {
	Filename      string `json:"filename"`
	ContainerType string `json:"container_type"`
	PixelFormat   string `json:"pixel_format"`
	// Duration is in seconds.
	Duration float64 `json:"duration"`
}

type Client struct {
	baseURL string
	http    *http.Client

	locker    xsync.Mutex
	durations map[string]time.Duration
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		http:      &http.Client{Timeout: 10 * time.Second},
		durations: map[string]time.Duration{},
	}
}

func (c *Client) get(ctx context.Context, target string, v any) error {
	u := c.baseURL + "/" + strings.TrimPrefix(target, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	logger.Tracef(ctx, "GET %s", u)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: %s: %s", target, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: decoding response: %w", target, err)
	}
	return nil
}

// SendRequest fetches target, e.g. "media/clip.mp4", and returns the
// decoded JSON object.
func (c *Client) SendRequest(ctx context.Context, target string) (map[string]any, error) {
	var v map[string]any
	if err := c.get(ctx, target, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Client) FileMeta(ctx context.Context, filename string) (*FileMeta, error) {
	var meta FileMeta
	if err := c.get(ctx, "media/"+url.PathEscape(filename), &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Duration returns the length of filename. Results are cached per file.
func (c *Client) Duration(ctx context.Context, filename string) (time.Duration, error) {
	if d, ok := xsync.DoR2(ctx, &c.locker, func() (time.Duration, bool) {
		d, ok := c.durations[filename]
		return d, ok
	}); ok {
		return d, nil
	}
	meta, err := c.FileMeta(ctx, filename)
	if err != nil {
		return 0, err
	}
	d := time.Duration(meta.Duration * float64(time.Second))
	c.locker.Do(ctx, func() {
		c.durations[filename] = d
	})
	return d, nil
}

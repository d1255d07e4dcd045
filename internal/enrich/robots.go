package enrich

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

// RobotsCache fetches robots.txt once per host. Hosts whose robots.txt
// cannot be fetched or parsed are treated as allowing everything.
type RobotsCache struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration

	mu    sync.Mutex
	hosts map[string]*robotsEntry
}

type robotsEntry struct {
	once  sync.Once
	group *robotstxt.Group
}

// NewRobotsCache creates a cache that identifies as userAgent.
func NewRobotsCache(client *http.Client, userAgent string, timeout time.Duration) *RobotsCache {
	return &RobotsCache{
		client:    client,
		userAgent: userAgent,
		timeout:   timeout,
		hosts:     make(map[string]*robotsEntry),
	}
}

// Allowed reports whether u may be fetched.
func (c *RobotsCache) Allowed(ctx context.Context, u *url.URL) bool {
	key := u.Scheme + "://" + u.Host

	c.mu.Lock()
	entry, ok := c.hosts[key]
	if !ok {
		entry = &robotsEntry{}
		c.hosts[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.group = c.fetch(ctx, key)
	})
	if entry.group == nil {
		return true
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return entry.group.Test(path)
}

func (c *RobotsCache) fetch(ctx context.Context, origin string) *robotstxt.Group {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+"/robots.txt", nil)
	if err != nil {
		return nil
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()

	// robotstxt maps 5xx to disallow-all; here it means allow.
	if resp.StatusCode >= 500 {
		return nil
	}

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data.FindGroup(c.userAgent)
}

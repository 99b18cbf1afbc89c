// Package central implements the central-shadow policy check of spec
// §4.3.4: unless a coordinate is on a maintained allow-list, probe
// Maven Central for (group, artifact); a hit means the deploy would
// shadow an upstream release.
//
// Grounded on the teacher's internal/handlers/remote_proxy_handler.go
// http.Client construction (explicit timeout + tuned transport for an
// upstream registry probe), adapted from a download-proxy client to a
// presence-only probe: a GET against the search endpoint that reads
// only the hit count.
package central

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultSearchURL is Maven Central's search endpoint.
const DefaultSearchURL = "https://search.maven.org/solrsearch/select"

// Checker probes Maven Central and consults a config-driven allowlist
// of coordinates that are permitted to shadow an upstream release
// (spec's "maintained allow-list").
type Checker struct {
	SearchURL string
	Allowlist map[string]bool // key: "group:artifact"
	Client    *http.Client
}

// NewChecker builds a Checker. allowlist keys are "group:artifact".
func NewChecker(searchURL string, allowlist map[string]bool) *Checker {
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	if allowlist == nil {
		allowlist = map[string]bool{}
	}
	return &Checker{
		SearchURL: searchURL,
		Allowlist: allowlist,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// Shadowed reports whether (group, artifact) already exists on Maven
// Central. An allow-listed coordinate is always reported as not
// shadowed without a network call.
func (c *Checker) Shadowed(ctx context.Context, group, artifact string) (bool, error) {
	if c.Allowlist[group+":"+artifact] {
		return false, nil
	}

	q := url.Values{}
	q.Set("q", fmt.Sprintf("g:%q AND a:%q", group, artifact))
	q.Set("rows", "1")
	q.Set("wt", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.SearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("central search returned status %d", resp.StatusCode)
	}

	var payload struct {
		Response struct {
			NumFound int `json:"numFound"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, err
	}
	return payload.Response.NumFound > 0, nil
}

// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package auth

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
)

// fetchTimeout bounds JWKS and discovery document fetches.
const fetchTimeout = 5 * time.Second

// unknownKIDRateLimit throttles forced refetches triggered by unknown kid
// lookups, so a burst of bad tokens cannot hammer the authorization server.
const unknownKIDRateLimit = 30 * time.Second

// jwksCache resolves authorization servers to JWKS handles. Each resolved
// URL gets one keyfunc.JWKS, which refreshes itself per URL: TTL expiry and
// unknown-kid rollover on one issuer never block another.
type jwksCache struct {
	client *http.Client
	ttl    time.Duration

	mu       sync.Mutex
	byServer map[string]*keyfunc.JWKS
	byURL    map[string]*keyfunc.JWKS
}

func newJWKSCache(ttlSeconds int) *jwksCache {
	return &jwksCache{
		client:   &http.Client{Timeout: fetchTimeout},
		ttl:      time.Duration(ttlSeconds) * time.Second,
		byServer: make(map[string]*keyfunc.JWKS),
		byURL:    make(map[string]*keyfunc.JWKS),
	}
}

// get returns the JWKS handle for an authorization server, creating it on
// first use. Creation is serialised so concurrent misses for the same
// server coalesce into a single discovery and fetch.
func (c *jwksCache) get(server string) (*keyfunc.JWKS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if jwks, ok := c.byServer[server]; ok {
		return jwks, nil
	}

	jwksURL, err := c.resolveURL(server)
	if err != nil {
		return nil, err
	}
	if jwks, ok := c.byURL[jwksURL]; ok {
		c.byServer[server] = jwks
		return jwks, nil
	}

	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		Client:            c.client,
		RefreshInterval:   c.ttl,
		RefreshTimeout:    fetchTimeout,
		RefreshUnknownKID: true,
		RefreshRateLimit:  unknownKIDRateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	c.byServer[server] = jwks
	c.byURL[jwksURL] = jwks
	return jwks, nil
}

// resolveURL finds the JWKS URL for an authorization server. A server URL
// that already references a jwks endpoint is used directly; otherwise the
// OpenID discovery document is consulted for jwks_uri.
func (c *jwksCache) resolveURL(server string) (string, error) {
	if strings.Contains(server, "jwks") {
		return server, nil
	}

	discoveryURL := strings.TrimRight(server, "/") + "/.well-known/openid_configuration"
	resp, err := c.client.Get(discoveryURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch discovery document from %s: %w", discoveryURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("discovery document fetch from %s returned HTTP %d", discoveryURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read discovery document: %w", err)
	}

	var metadata struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.Unmarshal(body, &metadata); err != nil {
		return "", fmt.Errorf("failed to decode discovery document: %w", err)
	}
	if metadata.JWKSURI == "" {
		return "", fmt.Errorf("discovery document from %s has no jwks_uri", discoveryURL)
	}
	return metadata.JWKSURI, nil
}

// close releases the background refresh goroutines of all handles.
func (c *jwksCache) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, jwks := range c.byURL {
		jwks.EndBackground()
	}
}

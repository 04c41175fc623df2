// Package jwks caches the identity provider's public signing keys.
//
// Keys are fetched lazily from a standard JWKS endpoint (RFC 7517) on the
// first lookup of an unknown key id, and the cached set is replaced
// wholesale — never patched in place. The cache lives for the process;
// provider key rotation is rare enough that no TTL applies, but
// Invalidate is exposed for operational recovery.
package jwks

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	auth "github.com/chimerakang/auth-go"
	"github.com/chimerakang/auth-go/metrics"
	"golang.org/x/sync/singleflight"
)

// Cache holds the provider's signing keys, keyed by kid.
type Cache struct {
	jwksURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics

	mu        sync.RWMutex
	keys      map[string]*rsa.PublicKey // kid → public key
	fetchedAt time.Time

	// Concurrent misses coalesce into one fetch.
	sf singleflight.Group
}

// Option configures the Cache.
type Option func(*Cache)

// WithHTTPClient sets a custom HTTP client for fetching the key set.
func WithHTTPClient(c *http.Client) Option {
	return func(k *Cache) { k.httpClient = c }
}

// WithMetrics wires fetch and hit/miss counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(k *Cache) { k.metrics = m }
}

// NewCache creates a key-set cache backed by the given JWKS endpoint.
// The cache starts empty; the first lookup triggers a fetch.
func NewCache(jwksURL string, opts ...Option) *Cache {
	k := &Cache{
		jwksURL:    jwksURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		keys:       make(map[string]*rsa.PublicKey),
	}
	for _, o := range opts {
		o(k)
	}
	return k
}

// Get returns the public key for kid. On a miss it refreshes the full key
// set once and retries the lookup; if the kid is still absent it returns
// auth.ErrKeyNotFound and the caller must fail its verification rather
// than retry. Fetch failures surface as auth.ErrKeySetUnavailable.
func (k *Cache) Get(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	k.mu.RLock()
	key, found := k.keys[kid]
	k.mu.RUnlock()

	if found {
		k.metrics.RecordKeyCacheHit()
		return key, nil
	}
	k.metrics.RecordKeyCacheMiss()

	if err := k.refresh(ctx); err != nil {
		return nil, err
	}

	k.mu.RLock()
	key, found = k.keys[kid]
	k.mu.RUnlock()

	if !found {
		return nil, fmt.Errorf("%w: kid %q", auth.ErrKeyNotFound, kid)
	}
	return key, nil
}

// Invalidate drops the cached key set. The next lookup fetches fresh keys.
func (k *Cache) Invalidate() {
	k.mu.Lock()
	k.keys = make(map[string]*rsa.PublicKey)
	k.fetchedAt = time.Time{}
	k.mu.Unlock()
}

// FetchedAt returns when the current key set was fetched, or the zero
// time if the cache is empty.
func (k *Cache) FetchedAt() time.Time {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.fetchedAt
}

// refresh fetches the key set and replaces the cache atomically.
// Concurrent callers share a single underlying fetch; readers holding
// already-cached keys are never blocked by a refresh in progress.
func (k *Cache) refresh(ctx context.Context) error {
	_, err, _ := k.sf.Do("refresh", func() (interface{}, error) {
		keys, err := k.fetch(ctx)
		if err != nil {
			k.metrics.RecordKeySetFetch("error")
			return nil, err
		}
		k.metrics.RecordKeySetFetch("ok")

		k.mu.Lock()
		k.keys = keys
		k.fetchedAt = time.Now()
		k.mu.Unlock()
		return nil, nil
	})
	return err
}

// fetch retrieves and parses the JWKS document. Nothing is applied on
// error; the previous set stays in place untouched.
func (k *Cache) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", auth.ErrKeySetUnavailable, err)
	}

	resp, err := k.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch: %v", auth.ErrKeySetUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: fetch returned status %d", auth.ErrKeySetUnavailable, resp.StatusCode)
	}

	var doc jwksDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", auth.ErrKeySetUnavailable, err)
	}

	keys := make(map[string]*rsa.PublicKey, len(doc.Keys))
	for _, jwk := range doc.Keys {
		if jwk.Kty != "RSA" || (jwk.Use != "" && jwk.Use != "sig") {
			continue
		}
		pub, err := jwk.rsaPublicKey()
		if err != nil {
			continue // skip malformed keys
		}
		keys[jwk.Kid] = pub
	}

	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: no valid RSA signing keys found", auth.ErrKeySetUnavailable)
	}
	return keys, nil
}

// JWKS JSON types

type jwksDocument struct {
	Keys []jwkKey `json:"keys"`
}

type jwkKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (k *jwkKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

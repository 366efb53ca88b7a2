// Package entropy provides the random sources the simulation draws from.
// Seeded sources keep runs reproducible; the random.org client pools true
// randomness and falls back to crypto/rand when the API is unavailable.
package entropy

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"log/slog"
	mrand "math/rand"
	"net/http"
	"sync"
	"time"
)

// Source yields uniform floats in [0, 1).
type Source interface {
	Float() float64
}

// Seeded is a deterministic Source backed by math/rand. Safe for concurrent use.
type Seeded struct {
	mu    sync.Mutex
	seed  int64
	drawn int64
	rng   *mrand.Rand
}

// NewSeeded creates a deterministic source from seed.
func NewSeeded(seed int64) *Seeded {
	return &Seeded{seed: seed, rng: mrand.New(mrand.NewSource(seed))}
}

// Float returns the next value of the seeded stream.
func (s *Seeded) Float() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drawn++
	return s.rng.Float64()
}

// Position is how far a seeded stream has advanced.
type Position struct {
	Seed  int64 `json:"seed"`
	Drawn int64 `json:"drawn"`
}

// Positioner is a Source that can report and restore its stream position.
type Positioner interface {
	Source
	Position() Position
	Seek(Position)
}

// Position returns the stream's seed and the number of values drawn so far.
func (s *Seeded) Position() Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Position{Seed: s.seed, Drawn: s.drawn}
}

// Seek restarts the stream from pos.Seed and skips pos.Drawn values, so the
// next Float matches the one an uninterrupted stream would return.
func (s *Seeded) Seek(pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seed = pos.Seed
	s.rng = mrand.New(mrand.NewSource(pos.Seed))
	s.drawn = 0
	for ; s.drawn < pos.Drawn; s.drawn++ {
		s.rng.Float64()
	}
}

// Sequence replays a fixed list of values, cycling when exhausted.
// Used to script draws in tests and replays.
type Sequence struct {
	mu     sync.Mutex
	values []float64
	next   int
}

// NewSequence creates a Sequence. An empty list always yields 0.
func NewSequence(values ...float64) *Sequence {
	return &Sequence{values: values}
}

// Float returns the next scripted value.
func (q *Sequence) Float() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.values) == 0 {
		return 0
	}
	v := q.values[q.next%len(q.values)]
	q.next++
	return v
}

// Client provides true random numbers from random.org with a local pool.
type Client struct {
	apiKey   string
	endpoint string
	client   *http.Client

	mu   sync.Mutex
	pool []float64
}

const randomOrgEndpoint = "https://api.random.org/json-rpc/4/invoke"

// NewClient creates a random.org client. Returns nil if apiKey is empty.
func NewClient(apiKey string) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		apiKey:   apiKey,
		endpoint: randomOrgEndpoint,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Float returns a random float64 in [0, 1). Uses the pool, refilling from
// random.org when low. Falls back to crypto/rand on API failure.
func (c *Client) Float() float64 {
	if c == nil {
		return CryptoFloat()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pool) < 10 {
		c.refill()
	}
	if len(c.pool) == 0 {
		return CryptoFloat()
	}

	val := c.pool[0]
	c.pool = c.pool[1:]
	return val
}

func (c *Client) refill() {
	req := map[string]any{
		"jsonrpc": "2.0",
		"method":  "generateDecimalFractions",
		"params": map[string]any{
			"apiKey":        c.apiKey,
			"n":             100,
			"decimalPlaces": 6,
		},
		"id": 1,
	}

	body, err := json.Marshal(req)
	if err != nil {
		slog.Debug("random.org marshal failed", "error", err)
		return
	}

	resp, err := c.client.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Debug("random.org fetch failed", "error", err)
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		slog.Debug("random.org read failed", "error", err)
		return
	}

	var result struct {
		Result struct {
			Random struct {
				Data []float64 `json:"data"`
			} `json:"random"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		slog.Debug("random.org parse failed", "error", err)
		return
	}
	if result.Error != nil {
		slog.Debug("random.org API error", "error", result.Error.Message)
		return
	}

	c.pool = append(c.pool, result.Result.Random.Data...)
	slog.Debug("random.org pool refilled", "count", len(result.Result.Random.Data))
}

// CryptoFloat returns a random float using crypto/rand (no API needed).
func CryptoFloat() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0.5
	}
	// 53 bits for a uniform float64 in [0, 1).
	n := binary.LittleEndian.Uint64(buf[:]) >> 11
	return float64(n) / float64(1<<53)
}

// Choose returns the seeded source when no random.org key is configured, and
// the pooled client otherwise. A zero seed selects crypto/rand.
func Choose(seed int64, apiKey string) Source {
	if c := NewClient(apiKey); c != nil {
		return c
	}
	if seed == 0 {
		return cryptoSource{}
	}
	return NewSeeded(seed)
}

type cryptoSource struct{}

func (cryptoSource) Float() float64 { return CryptoFloat() }

package archive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync/atomic"

	json "github.com/goccy/go-json"

	"ogd/internal/models"
	"ogd/internal/providers"
	"ogd/internal/structures"
)

// ErrStopStream can be returned by the stream callback to abort the fetch
// without surfacing an error (e.g. when maxGames is reached).
var ErrStopStream = errors.New("stop stream")

// Game is the subset of the archive service's NDJSON game export we consume.
type Game struct {
	ID         string `json:"id"`
	CreatedAt  int64  `json:"createdAt"`
	LastMoveAt int64  `json:"lastMoveAt"`
	Speed      string `json:"speed"`
	Rated      bool   `json:"rated"`
	Status     string `json:"status"`
	Winner     string `json:"winner"`
	Moves      string `json:"moves"`
	PGN        string `json:"pgn"`
	Players    struct {
		White Player `json:"white"`
		Black Player `json:"black"`
	} `json:"players"`
}

type Player struct {
	User *struct {
		Name string `json:"name"`
	} `json:"user"`
	Name   string `json:"name"`
	Rating int    `json:"rating"`
}

// Username returns the player name regardless of whether the payload carried
// a registered account or an anonymous name.
func (p Player) Username() string {
	if p.User != nil && p.User.Name != "" {
		return p.User.Name
	}
	return p.Name
}

// ClientInterface streams a player's game archive. The callback receives each
// decoded game together with the total bytes consumed so far; returning
// ErrStopStream aborts cleanly, any other error aborts and is surfaced.
type ClientInterface interface {
	StreamGames(ctx context.Context, req models.ImportRequest, fn func(g *Game, bytesRead int64) error) error
}

type Client struct {
	baseURL   string
	userAgent string
	client    *http.Client
	logger    providers.Logger
}

func NewArchiveClient(conf *structures.Config, logger providers.Logger) ClientInterface {
	// RequestTimeout bounds dialing and waiting for response headers only.
	// The body is a long-lived stream and is bounded by the caller's context,
	// so a whole-request http.Client timeout would kill large imports.
	return &Client{
		baseURL:   conf.Archive.BaseURL,
		userAgent: conf.Archive.UserAgent,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext:           (&net.Dialer{Timeout: conf.Archive.RequestTimeout}).DialContext,
				ResponseHeaderTimeout: conf.Archive.RequestTimeout,
			},
		},
		logger: logger,
	}
}

func (c *Client) StreamGames(ctx context.Context, req models.ImportRequest, fn func(g *Game, bytesRead int64) error) error {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return fmt.Errorf("invalid archive base URL %q: %w", c.baseURL, err)
	}
	endpoint := base.JoinPath("api", "games", "user", req.Username)

	q := endpoint.Query()
	q.Set("moves", "true")
	q.Set("pgnInJson", "true")
	q.Set("sort", "dateDesc")
	if req.MaxGames > 0 {
		q.Set("max", strconv.Itoa(req.MaxGames))
	}
	if req.SinceTimestampMs > 0 {
		q.Set("since", strconv.FormatInt(req.SinceTimestampMs, 10))
	}
	if req.Color != "" {
		q.Set("color", req.Color)
	}
	if req.Rated != "" {
		q.Set("rated", req.Rated)
	}
	endpoint.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return fmt.Errorf("create archive request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/x-ndjson")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("archive request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("archive returned status %d: %s", resp.StatusCode, string(body))
	}

	cr := &countingReader{r: resp.Body}
	scanner := bufio.NewScanner(cr)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var g Game
		if err := json.Unmarshal(line, &g); err != nil {
			c.logger.Warnf(providers.TypeImport, "Skipping undecodable archive line: %s", err)
			continue
		}
		if err := fn(&g, cr.Count()); err != nil {
			if errors.Is(err, ErrStopStream) {
				return nil
			}
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("archive stream: %w", err)
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

func (c *countingReader) Count() int64 {
	return c.n.Load()
}

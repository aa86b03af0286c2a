package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"

	"github.com/freeeve/prepgraph/internal/graph"
)

// DefaultBaseURL is the public lichess opening explorer.
const DefaultBaseURL = "https://explorer.lichess.ovh"

// Lower bounds of the explorer's rating groups. A group covers ratings up to
// the next bound; the last one is open-ended.
var ratingGroups = []int{0, 1000, 1200, 1400, 1600, 1800, 2000, 2200, 2500}

var errRateLimited = errors.New("rate limited")

// LichessConfig configures a Lichess client. Zero fields take defaults.
type LichessConfig struct {
	BaseURL        string
	Token          string // optional bearer token
	UserAgent      string
	HTTPClient     *http.Client
	Attempts       uint          // total tries per lookup (default 5)
	Delay          time.Duration // base backoff (default 500ms)
	RateLimitDelay time.Duration // wait after a 429 (default 1m)
	Logger         zerolog.Logger
}

// Lichess is a Source backed by the lichess explorer HTTP API.
type Lichess struct {
	cfg LichessConfig
	log zerolog.Logger
}

// NewLichess creates a client.
func NewLichess(cfg LichessConfig) *Lichess {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.UserAgent == "" {
		cfg.UserAgent = "prepgraph"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Attempts == 0 {
		cfg.Attempts = 5
	}
	if cfg.Delay == 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.RateLimitDelay == 0 {
		cfg.RateLimitDelay = time.Minute
	}
	return &Lichess{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "explorer").Logger(),
	}
}

type lichessMove struct {
	UCI           string `json:"uci"`
	SAN           string `json:"san"`
	AverageRating int    `json:"averageRating"`
	White         uint64 `json:"white"`
	Draws         uint64 `json:"draws"`
	Black         uint64 `json:"black"`
}

type lichessPosition struct {
	White   uint64        `json:"white"`
	Draws   uint64        `json:"draws"`
	Black   uint64        `json:"black"`
	Moves   []lichessMove `json:"moves"`
	Opening *Opening      `json:"opening"`
}

// Lookup implements Source.
func (l *Lichess) Lookup(ctx context.Context, req Request) (*Position, error) {
	u, err := l.endpoint(req)
	if err != nil {
		return nil, &DataSourceError{Key: req.Key, Err: err}
	}

	var raw *lichessPosition
	err = retry.Do(
		func() error {
			p, err := l.fetch(ctx, u, req.Key)
			if err != nil {
				return err
			}
			raw = p
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(l.cfg.Attempts),
		retry.Delay(l.cfg.Delay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			l.log.Warn().Err(err).Uint("n", n).Str("fen", req.Key.ShortFEN()).Msg("explorer retry")
			if errors.Is(err, errRateLimited) {
				return l.cfg.RateLimitDelay
			}
			return retry.BackOffDelay(n, err, config)
		}),
	)
	if err != nil {
		return nil, AsDataSourceError(req.Key, err)
	}
	return l.convert(req.Key, raw), nil
}

func (l *Lichess) endpoint(req Request) (string, error) {
	if req.Key.IsZero() {
		return "", errors.New("zero position key")
	}
	db := req.Filter.Database
	if db == "" {
		db = "lichess"
	}
	if db != "lichess" && db != "masters" {
		return "", fmt.Errorf("unknown database %q", db)
	}

	q := url.Values{}
	q.Set("variant", "standard")
	q.Set("fen", req.Key.FEN())
	q.Set("topGames", "0")
	q.Set("recentGames", "0")
	if req.Filter.Moves > 0 {
		q.Set("moves", strconv.Itoa(req.Filter.Moves))
	}
	if db == "lichess" {
		if len(req.Filter.Speeds) > 0 {
			q.Set("speeds", strings.Join(req.Filter.Speeds, ","))
		}
		if groups := ratingBuckets(req.Filter.RatingMin, req.Filter.RatingMax); len(groups) > 0 {
			q.Set("ratings", groups)
		}
	}
	return l.cfg.BaseURL + "/" + db + "?" + q.Encode(), nil
}

// ratingBuckets lists the rating groups overlapping [lowest, highest].
// highest <= 0 means no upper bound; an empty result means every group.
func ratingBuckets(lowest, highest int) string {
	if lowest <= 0 && highest <= 0 {
		return ""
	}
	var out []string
	for i, lo := range ratingGroups {
		hi := int(^uint(0) >> 1)
		if i+1 < len(ratingGroups) {
			hi = ratingGroups[i+1] - 1
		}
		if highest > 0 && lo > highest {
			break
		}
		if hi < lowest {
			continue
		}
		out = append(out, strconv.Itoa(lo))
	}
	return strings.Join(out, ",")
}

func (l *Lichess) fetch(ctx context.Context, u string, key graph.PositionKey) (*lichessPosition, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, retry.Unrecoverable(&DataSourceError{Key: key, Err: err})
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", l.cfg.UserAgent)
	if l.cfg.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+l.cfg.Token)
	}

	resp, err := l.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, &DataSourceError{Key: key, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		io.Copy(io.Discard, resp.Body)
		return nil, &DataSourceError{Key: key, Status: resp.StatusCode, Err: errRateLimited}
	case resp.StatusCode == http.StatusNotFound:
		return nil, &DataSourceError{Key: key, Status: resp.StatusCode, Err: ErrNotFound}
	default:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &DataSourceError{Key: key, Status: resp.StatusCode, Err: fmt.Errorf("body: %q", b)}
	}

	var raw lichessPosition
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &DataSourceError{Key: key, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
	}
	return &raw, nil
}

// retryable covers network errors, rate limiting and server errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var dse *DataSourceError
	if !errors.As(err, &dse) {
		return false
	}
	return dse.Status == 0 || dse.Status == http.StatusTooManyRequests || dse.Status >= 500
}

// convert resolves each move's label and child key by replaying its SAN.
// Moves that do not replay are dropped with a warning.
func (l *Lichess) convert(key graph.PositionKey, raw *lichessPosition) *Position {
	p := &Position{
		White:   raw.White,
		Draws:   raw.Draws,
		Black:   raw.Black,
		Opening: raw.Opening,
		Moves:   make([]MoveStat, 0, len(raw.Moves)),
	}
	for _, rm := range raw.Moves {
		ms, err := Stat(key, rm.SAN)
		if err != nil {
			l.log.Warn().Err(err).Str("fen", key.ShortFEN()).Str("uci", rm.UCI).Msg("dropping explorer move")
			continue
		}
		ms.White, ms.Draws, ms.Black = rm.White, rm.Draws, rm.Black
		ms.AverageRating = rm.AverageRating
		p.Moves = append(p.Moves, ms)
	}
	return p
}

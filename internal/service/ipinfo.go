package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ffa-tycoon/ffa-tycoon/internal/config"
	apperrors "github.com/ffa-tycoon/ffa-tycoon/internal/errors"
)

const (
	vpnapiBaseURL   = "https://vpnapi.io/api/"
	ipInfoTimeout   = 10 * time.Second
	ipInfoKeyPrefix = "ipinfo:"
)

// IPInfoService looks up the reputation of player addresses (VPN, proxy,
// Tor, location) on vpnapi.io. Answers are cached in Redis when a client is
// configured.
type IPInfoService struct {
	apiKey  string
	baseURL string
	client  *http.Client
	cache   *redis.Client
	ttl     time.Duration
}

func NewIPInfoService(apiKey string, cache *redis.Client) *IPInfoService {
	return &IPInfoService{
		apiKey:  apiKey,
		baseURL: vpnapiBaseURL,
		client: &http.Client{
			Timeout: ipInfoTimeout,
		},
		cache: cache,
		ttl:   config.IPInfoCacheTTL,
	}
}

func (s *IPInfoService) Enabled() bool {
	return s.apiKey != ""
}

// Lookup returns the vpnapi.io report for ip.
func (s *IPInfoService) Lookup(ctx context.Context, ip string) (map[string]any, error) {
	if net.ParseIP(ip) == nil {
		return nil, apperrors.InvalidInput("ip", "not an IP address")
	}
	if !s.Enabled() {
		return nil, apperrors.External("vpnapi", errors.New("no api key configured"))
	}

	if body, ok := s.cached(ctx, ip); ok {
		if info, err := decodeIPInfo(body); err == nil {
			return info, nil
		}
	}

	endpoint := s.baseURL + url.PathEscape(ip) + "?key=" + url.QueryEscape(s.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("ip lookup error")
		return nil, apperrors.External("vpnapi", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Str("ip", ip).Int("status", resp.StatusCode).Msg("ip lookup failed")
		return nil, apperrors.External("vpnapi", fmt.Errorf("status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.External("vpnapi", err)
	}
	info, err := decodeIPInfo(body)
	if err != nil {
		return nil, apperrors.External("vpnapi", err)
	}

	s.store(ctx, ip, body)
	return info, nil
}

func decodeIPInfo(body []byte) (map[string]any, error) {
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("decode ip info: %w", err)
	}
	if info == nil {
		return nil, errors.New("empty ip info")
	}
	return info, nil
}

func (s *IPInfoService) cached(ctx context.Context, ip string) ([]byte, bool) {
	if s.cache == nil {
		return nil, false
	}
	body, err := s.cache.Get(ctx, ipInfoKeyPrefix+ip).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("ip", ip).Msg("ip info cache read failed")
		}
		return nil, false
	}
	return body, true
}

func (s *IPInfoService) store(ctx context.Context, ip string, body []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, ipInfoKeyPrefix+ip, body, s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("ip", ip).Msg("ip info cache write failed")
	}
}

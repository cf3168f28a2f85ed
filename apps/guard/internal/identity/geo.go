package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"EduServer/config"
	"EduServer/model"
	"EduServer/pkg/logger"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sony/gobreaker"
)

var (
	// ErrGeoUnavailable 所有 provider 均失败
	ErrGeoUnavailable = errors.New("geolocation unavailable")
	// ErrNotPublicIP 内网/回环地址无需查询
	ErrNotPublicIP = errors.New("ip is not public")
)

// GeoLocator IP 定位
type GeoLocator interface {
	Lookup(ctx context.Context, ip string) (*model.GeoLocation, error)
}

type geoProvider struct {
	name    string
	url     string
	format  string
	breaker *gobreaker.CircuitBreaker
}

// ProviderChain 按顺序尝试多个定位服务，每个有独立超时和熔断器，结果按 IP 缓存
type ProviderChain struct {
	providers []*geoProvider
	client    *http.Client
	timeout   time.Duration
	cache     *expirable.LRU[string, *model.GeoLocation]
}

// NewProviderChain 根据配置创建定位链，client 为 nil 时使用默认 http.Client
func NewProviderChain(cfg config.GeoConfig, client *http.Client) *ProviderChain {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	c := &ProviderChain{
		client:  client,
		timeout: cfg.Timeout,
		cache:   expirable.NewLRU[string, *model.GeoLocation](cfg.CacheSize, nil, cfg.CacheTTL),
	}
	for _, p := range cfg.Providers {
		c.providers = append(c.providers, &geoProvider{
			name:   p.Name,
			url:    p.URL,
			format: p.Format,
			breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name:        "geo-" + p.Name,
				MaxRequests: 1,
				Interval:    time.Minute,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 3
				},
			}),
		})
	}
	return c
}

// Lookup 逐个尝试 provider，第一个成功的结果写入缓存
func (c *ProviderChain) Lookup(ctx context.Context, ip string) (*model.GeoLocation, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() || parsed.IsLinkLocalUnicast() {
		return nil, ErrNotPublicIP
	}
	if geo, ok := c.cache.Get(ip); ok {
		return geo, nil
	}

	var lastErr error
	for _, p := range c.providers {
		res, err := p.breaker.Execute(func() (interface{}, error) {
			return c.query(ctx, p, ip)
		})
		if err != nil {
			lastErr = err
			logger.Debug(ctx, "geo provider 查询失败",
				logger.String("provider", p.name),
				logger.ErrorField("error", err),
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		geo := res.(*model.GeoLocation)
		c.cache.Add(ip, geo)
		return geo, nil
	}
	if lastErr == nil {
		return nil, ErrGeoUnavailable
	}
	return nil, fmt.Errorf("%w: %v", ErrGeoUnavailable, lastErr)
}

func (c *ProviderChain) query(ctx context.Context, p *geoProvider, ip string) (*model.GeoLocation, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.ReplaceAll(p.url, "{ip}", ip), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", p.name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return nil, err
	}
	return parseGeo(p.format, body)
}

// parseGeo 各 provider 的响应格式不同
func parseGeo(format string, body []byte) (*model.GeoLocation, error) {
	switch format {
	case "ipapi":
		var r struct {
			Error       bool    `json:"error"`
			Reason      string  `json:"reason"`
			City        string  `json:"city"`
			Region      string  `json:"region"`
			CountryName string  `json:"country_name"`
			Latitude    float64 `json:"latitude"`
			Longitude   float64 `json:"longitude"`
			Timezone    string  `json:"timezone"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		if r.Error {
			return nil, fmt.Errorf("ipapi: %s", r.Reason)
		}
		return &model.GeoLocation{Country: r.CountryName, Region: r.Region, City: r.City, Lat: r.Latitude, Lon: r.Longitude, Timezone: r.Timezone}, nil
	case "ipwho":
		var r struct {
			Success   bool    `json:"success"`
			Message   string  `json:"message"`
			Country   string  `json:"country"`
			Region    string  `json:"region"`
			City      string  `json:"city"`
			Latitude  float64 `json:"latitude"`
			Longitude float64 `json:"longitude"`
			Timezone  struct {
				ID string `json:"id"`
			} `json:"timezone"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		if !r.Success {
			return nil, fmt.Errorf("ipwho: %s", r.Message)
		}
		return &model.GeoLocation{Country: r.Country, Region: r.Region, City: r.City, Lat: r.Latitude, Lon: r.Longitude, Timezone: r.Timezone.ID}, nil
	case "ipinfo":
		var r struct {
			Bogon    bool   `json:"bogon"`
			City     string `json:"city"`
			Region   string `json:"region"`
			Country  string `json:"country"`
			Loc      string `json:"loc"`
			Timezone string `json:"timezone"`
		}
		if err := json.Unmarshal(body, &r); err != nil {
			return nil, err
		}
		if r.Bogon {
			return nil, errors.New("ipinfo: bogon ip")
		}
		geo := &model.GeoLocation{Country: r.Country, Region: r.Region, City: r.City, Timezone: r.Timezone}
		if lat, lon, ok := strings.Cut(r.Loc, ","); ok {
			geo.Lat, _ = strconv.ParseFloat(lat, 64)
			geo.Lon, _ = strconv.ParseFloat(lon, 64)
		}
		return geo, nil
	default:
		return nil, fmt.Errorf("unknown geo format %q", format)
	}
}

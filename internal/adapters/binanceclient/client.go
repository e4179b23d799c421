package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dcaAlertBot/internal/domain"
	"dcaAlertBot/internal/ports"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

const (
	// Base URLs
	baseURLProduction = "https://api.binance.com"
	baseURLTestnet    = "https://testnet.binance.vision"
)

// Client implements the ports.MarketDataSource interface using the go-binance spot client.
type Client struct {
	spotClient   *binance.Client
	logger       ports.Logger
	limiter      *rate.Limiter
	location     *time.Location
	retryInitial time.Duration
	retryMax     time.Duration
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	BaseURL    string // Overrides the production/testnet URL when set
	Logger     ports.Logger

	RequestsPerSecond    float64        // Client side pacing, defaults to 5
	RetryInitialInterval time.Duration  // First backoff delay, defaults to 500ms
	MaxRetryElapsed      time.Duration  // Total retry budget per request, defaults to 30s
	Location             *time.Location // Timezone klines are converted to, defaults to UTC
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		// Klines and ping are public endpoints; keys are optional here.
		cfg.Logger.Warn(context.Background(), "APIKey or SecretKey is empty. Client will only work for public endpoints.")
	}

	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global binance.UseTestnet
	switch {
	case cfg.BaseURL != "":
		client.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.UseTestnet:
		client.BaseURL = baseURLTestnet
	default:
		client.BaseURL = baseURLProduction
	}
	cfg.Logger.Info(context.Background(), "Binance client configured", map[string]interface{}{"baseURL": client.BaseURL, "testnet": cfg.UseTestnet})

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	retryInitial := cfg.RetryInitialInterval
	if retryInitial <= 0 {
		retryInitial = 500 * time.Millisecond
	}
	retryMax := cfg.MaxRetryElapsed
	if retryMax <= 0 {
		retryMax = 30 * time.Second
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}

	return &Client{
		spotClient:   client,
		logger:       cfg.Logger,
		limiter:      rate.NewLimiter(rate.Limit(rps), 1),
		location:     loc,
		retryInitial: retryInitial,
		retryMax:     retryMax,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		// Map specific Binance error codes to custom errors
		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1121: // Invalid symbol
			mappedErr = ports.ErrInvalidSymbol
		case -1100, -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format invalid / invalid API-key, IP, or permissions for action
			mappedErr = ports.ErrInvalidAPIKeys
		case -1000, -1001, -1016: // Unknown error / disconnected / service shutting down
			mappedErr = ports.ErrExchangeUnavailable
		default:
			// General classification for unmapped API errors
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	if errors.Is(err, context.DeadlineExceeded) {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	} else if errors.Is(err, context.Canceled) {
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	} else if errors.Is(err, ports.ErrMalformedResponse) {
		finalErr = fmt.Errorf("%s failed: %w", operation, err)
	} else if strings.Contains(err.Error(), "use of closed network connection") ||
		strings.Contains(err.Error(), "connection refused") ||
		strings.Contains(err.Error(), "connection reset by peer") {
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	} else {
		// Default for other errors (e.g., parsing errors within the library)
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// isPermanent reports whether retrying err cannot succeed.
func isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == -1003, apiErr.Code == -1021:
			return false // Rate limit and clock skew recover with time
		case apiErr.Code <= -1100 && apiErr.Code >= -1199:
			return true // Request/parameter errors
		case apiErr.Code == -1022, apiErr.Code == -2014, apiErr.Code == -2015:
			return true
		}
	}
	return false
}

// retry runs op under the rate limiter with exponential backoff.
func (c *Client) retry(ctx context.Context, operation string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInitial
	policy.MaxElapsedTime = c.retryMax

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn(ctx, operation+" attempt failed, retrying", map[string]interface{}{"attempt": attempt, "error": err.Error()})
		return err
	}, backoff.WithContext(policy, ctx))
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	if err := c.limiter.Wait(ctx); err != nil {
		return c.handleError(ctx, err, op)
	}
	err := c.spotClient.NewPingService().Do(ctx)
	if err != nil {
		// Ping failure likely indicates connection or availability issues
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetKlines retrieves the most recent klines for the given symbol, oldest first.
func (c *Client) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Kline, error) {
	op := "GetKlines"
	var binanceKlines []*binance.Kline
	err := c.retry(ctx, op, func() error {
		var err error
		binanceKlines, err = c.spotClient.NewKlinesService().Symbol(symbol).Interval(interval).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	domainKlines := make([]*domain.Kline, 0, len(binanceKlines))
	for _, bk := range binanceKlines {
		dk, err := translateBinanceKline(bk, symbol, interval, c.location)
		if err != nil {
			return nil, c.handleError(ctx, fmt.Errorf("%w: failed to translate kline: %w", ports.ErrMalformedResponse, err), op)
		}
		domainKlines = append(domainKlines, dk)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "interval": interval, "count": len(domainKlines)})
	return domainKlines, nil
}

func translateBinanceKline(bk *binance.Kline, symbol, interval string, loc *time.Location) (*domain.Kline, error) {
	if bk == nil {
		return nil, errors.New("received nil kline")
	}
	open, err := strconv.ParseFloat(bk.Open, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing open price '%s': %w", bk.Open, err)
	}
	high, err := strconv.ParseFloat(bk.High, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing high price '%s': %w", bk.High, err)
	}
	low, err := strconv.ParseFloat(bk.Low, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing low price '%s': %w", bk.Low, err)
	}
	cls, err := strconv.ParseFloat(bk.Close, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing close price '%s': %w", bk.Close, err)
	}
	vol, err := strconv.ParseFloat(bk.Volume, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing volume '%s': %w", bk.Volume, err)
	}

	return &domain.Kline{
		OpenTime:  time.UnixMilli(bk.OpenTime).In(loc),
		CloseTime: time.UnixMilli(bk.CloseTime).In(loc),
		Symbol:    symbol,   // Use passed symbol as it's not in binance.Kline
		Interval:  interval, // Use passed interval
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
	}, nil
}

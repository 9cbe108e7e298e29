package whatsapp

import (
	"net/http"
	"sync"
	"time"

	"whatsapp-automation/internal/config"
	"whatsapp-automation/internal/models"

	"golang.org/x/time/rate"
)

// Factory builds tenant-scoped clients. Clients of the same phone number share
// one send limiter so concurrent requests respect a single outbound rate.
type Factory struct {
	baseURL    string
	version    string
	httpClient *http.Client
	limit      rate.Limit
	burst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewFactory(cfg *config.Config) *Factory {
	limit := rate.Inf
	if cfg.SendRatePerSecond > 0 {
		limit = rate.Limit(cfg.SendRatePerSecond)
	}
	burst := cfg.SendBurst
	if burst <= 0 {
		burst = 1
	}
	return &Factory{
		baseURL:    cfg.GraphAPIURL,
		version:    cfg.GraphAPIVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limit:      limit,
		burst:      burst,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// WithHTTPClient swaps the transport, used by tests.
func (f *Factory) WithHTTPClient(client *http.Client) *Factory {
	f.httpClient = client
	return f
}

func (f *Factory) ForIntegration(integration *models.Integration) *Client {
	return &Client{
		baseURL:       f.baseURL,
		version:       f.version,
		accessToken:   integration.AccessToken,
		phoneNumberID: integration.PhoneNumberID,
		httpClient:    f.httpClient,
		limiter:       f.limiter(integration.PhoneNumberID),
	}
}

func (f *Factory) limiter(key string) *rate.Limiter {
	f.mu.Lock()
	defer f.mu.Unlock()

	lim, ok := f.limiters[key]
	if !ok {
		lim = rate.NewLimiter(f.limit, f.burst)
		f.limiters[key] = lim
	}
	return lim
}

package exchange

import (
	"context"
	"fmt"
	"net"
	"strings"

	logger "github.com/sirupsen/logrus"

	"github.com/fjr-software/flinkbot-bot/src/model"
	"github.com/fjr-software/flinkbot-bot/src/repository"
)

// Option identifies one supported exchange. The set is closed; adding an
// exchange means adding a connector and a case in newConnector.
type Option int

const (
	OptionBinance Option = iota
)

func (o Option) String() string {
	switch o {
	case OptionBinance:
		return "BINANCE"
	default:
		return "UNKNOWN"
	}
}

// ParseOption maps a stored exchange name onto an Option.
func ParseOption(name string) (Option, error) {
	switch strings.ToUpper(name) {
	case "BINANCE":
		return OptionBinance, nil
	default:
		return 0, fmt.Errorf("exchange: unknown exchange %q", name)
	}
}

// Manager builds a ready-to-use connector bound to a request budget row.
// The hosting IP's row wins when usable, otherwise the first active proxy
// row is taken; consumed quota is written back after every round trip.
type Manager struct {
	option     Option
	publicKey  string
	privateKey string
	rateLimits *repository.RateLimitRepository
	exchange   Exchange
}

// NewManager selects a budget row and constructs the connector.
func NewManager(option Option, publicKey, privateKey string) (*Manager, error) {
	return newManager(option, publicKey, privateKey, repository.NewRateLimitRepository())
}

func newManager(option Option, publicKey, privateKey string, rateLimits *repository.RateLimitRepository) (*Manager, error) {
	m := &Manager{
		option:     option,
		publicKey:  publicKey,
		privateKey: privateKey,
		rateLimits: rateLimits,
	}

	if err := m.init(); err != nil {
		return nil, err
	}

	return m, nil
}

// GetExchange returns the connector.
func (m *Manager) GetExchange() Exchange {
	return m.exchange
}

func (m *Manager) init() error {
	row, err := m.selectRateLimitRow(context.Background())
	if err != nil {
		return err
	}

	proxyURL := ""
	var onUsage UsageFunc

	if row != nil {
		if row.Type == model.RateLimitTypeProxy {
			proxyURL = GetConfig().ProxyURL(row.IP)
		}

		rowID := row.ID
		onUsage = func(requestCount, orderCount int) {
			if err := m.rateLimits.UpdateUsage(context.Background(), rowID, requestCount, orderCount); err != nil {
				logger.WithError(err).Warn("Failed to persist rate limit usage")
			}
		}
	}

	switch m.option {
	case OptionBinance:
		m.exchange = NewBinance(m.publicKey, m.privateKey, proxyURL, onUsage)
	default:
		return fmt.Errorf("exchange: unknown exchange option %d", m.option)
	}

	return nil
}

// selectRateLimitRow picks the budget row for this connector: the hosting
// IP's row when its request budget is usable, else the first usable proxy.
// A nil row means untracked direct access.
func (m *Manager) selectRateLimitRow(ctx context.Context) (*model.APIRateLimit, error) {
	exchangeName := strings.ToLower(m.option.String())

	hosting, err := m.rateLimits.FindHosting(ctx, exchangeName, localIP())
	if err != nil {
		return nil, err
	}

	if hosting != nil && hosting.RequestStatus == model.RateLimitStatusActive {
		return hosting, nil
	}

	proxies, err := m.rateLimits.FindActiveProxies(ctx, exchangeName)
	if err != nil {
		return nil, err
	}

	for i := range proxies {
		if proxies[i].RequestStatus == model.RateLimitStatusActive {
			return &proxies[i], nil
		}
	}

	logger.WithFields(map[string]interface{}{
		"exchange": exchangeName,
		"ip":       localIP(),
	}).Warn("No usable rate limit row, connecting untracked")

	return nil, nil
}

// localIP returns the first non-loopback IPv4 address of this host.
// Variable so tests can pin the address.
var localIP = func() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			return v4.String()
		}
	}

	return ""
}

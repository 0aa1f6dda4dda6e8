package exchange

import (
	"fmt"
	"net/url"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ProxyHost       string `envconfig:"EXCHANGE_PROXY_HOST" default:"http://brd.superproxy.io:22225"`
	ProxyCustomerID string `envconfig:"EXCHANGE_PROXY_CUSTOMER_ID" default:""`
	ProxyZone       string `envconfig:"EXCHANGE_PROXY_ZONE" default:"data_center"`
	ProxyPassword   string `envconfig:"EXCHANGE_PROXY_PASSWORD" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// ProxyURL builds the authenticated proxy URL pinning the given outbound IP.
// Returns "" when no proxy credentials are configured.
func (c Config) ProxyURL(ip string) string {
	if c.ProxyCustomerID == "" || c.ProxyPassword == "" {
		return ""
	}

	parsed, err := url.Parse(c.ProxyHost)
	if err != nil {
		return ""
	}

	username := fmt.Sprintf("brd-customer-%s-zone-%s-ip-%s", c.ProxyCustomerID, c.ProxyZone, ip)
	parsed.User = url.UserPassword(username, c.ProxyPassword)

	return parsed.String()
}

package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/relaymq/relay-go/pkg/wire"
)

// Service type constants for mDNS.
const (
	// ServiceType is the DNS-SD service type of Relay brokers.
	ServiceType = "_relay._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the default broker port.
	DefaultPort = 7878
)

// TXT record keys.
const (
	TXTKeyVersion      = "ver"
	TXTKeyCapabilities = "cap"
	TXTKeyMaxMessage   = "max"
)

// BrowseTimeout is the default timeout for mDNS browsing.
const BrowseTimeout = 10 * time.Second

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// BrokerInfo is what a broker advertises about itself.
type BrokerInfo struct {
	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// Port is the broker's TCP port (0 selects DefaultPort).
	Port uint16

	Version          uint8
	Capabilities     wire.Capability
	MaxMessageLength uint32
}

// BrokerService is a broker found by browsing.
type BrokerService struct {
	InstanceName string
	Host         string
	Port         uint16

	// Addresses are the resolved IPv4 and IPv6 addresses.
	Addresses []string

	Version          uint8
	Capabilities     wire.Capability
	MaxMessageLength uint32
}

// Addr returns a dialable host:port, preferring the first resolved
// address over the host name.
func (s *BrokerService) Addr() string {
	host := s.Host
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// DialHost returns the host part of Addr.
func (s *BrokerService) DialHost() string {
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return s.Host
}

// AdvertiserConfig configures advertising.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL for the DNS records (0 uses the library default).
	TTL time.Duration
}

// BrowserConfig configures browsing.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	// Empty means all interfaces.
	Interface string

	// BrowseTimeout bounds Find. Default: 10 seconds.
	BrowseTimeout time.Duration
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{BrowseTimeout: BrowseTimeout}
}

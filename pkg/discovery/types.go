package discovery

import (
	"errors"
	"net"
	"strconv"
	"time"
)

const (
	// ServiceType is the DNS-SD service type of firefly nodes.
	ServiceType = "_firefly._udp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is advertised when a node does not set one.
	DefaultPort = 7400
)

// TXT record keys.
const (
	TXTKeyVersion = "ver"
	TXTKeyNodeID  = "id"
	TXTKeyName    = "name"
)

const (
	// BrowseTimeout is the default timeout for FindByNodeID.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrIncompatible        = errors.New("incompatible protocol version")
	ErrEmptyInstanceName   = errors.New("empty instance name")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrTXTRecordTooLarge   = errors.New("TXT record exceeds 400 bytes")
	ErrNotFound            = errors.New("service not found")
	ErrNotAdvertising      = errors.New("not advertising")
)

// NodeInfo is what a node advertises about itself.
type NodeInfo struct {
	// Name is the instance name and the optional name TXT entry.
	Name string

	// NodeID identifies the node across restarts and addresses.
	NodeID string

	// Version is the protocol version; empty means version.Current.
	Version string

	// Port is the UDP port of the node's link-layer port.
	Port uint16
}

// Service is a node found by browsing.
type Service struct {
	InstanceName string
	Host         string
	Port         uint16
	Addresses    []string

	NodeID  string
	Name    string
	Version string
}

// Addr returns "ip:port" for the first known address, preferring IPv4.
// It returns "" when no address is known.
func (s *Service) Addr() string {
	var fallback string
	for _, a := range s.Addresses {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return net.JoinHostPort(a, strconv.Itoa(int(s.Port)))
		}
		if fallback == "" {
			fallback = net.JoinHostPort(a, strconv.Itoa(int(s.Port)))
		}
	}
	return fallback
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		TTL: 120 * time.Second,
	}
}

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindByNodeID when ctx has no deadline.
	// Default: 10 seconds.
	BrowseTimeout time.Duration

	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

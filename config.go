package imap

import (
	"fmt"
	"strings"
	"time"
)

// Encryption selects how the connection is secured
type Encryption string

const (
	EncryptionNone     Encryption = ""
	EncryptionNoTLS    Encryption = "notls"
	EncryptionSSL      Encryption = "ssl"
	EncryptionTLS      Encryption = "tls"
	EncryptionStartTLS Encryption = "starttls"
)

// implicitTLS reports whether TLS is negotiated right after the TCP connect
func (e Encryption) implicitTLS() bool {
	return e == EncryptionSSL || e == EncryptionTLS
}

// Order is the fetch order applied to searched ids
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// KeyStrategy decides how populated messages are keyed in a MessageCollection
type KeyStrategy string

const (
	KeyByMessageID KeyStrategy = "id"
	KeyByNumber    KeyStrategy = "number"
	KeyByUID       KeyStrategy = "uid"
	KeyByList      KeyStrategy = "list"
)

// FetchOption is a bitmask of fetch behaviours
type FetchOption uint8

const (
	// FetchPeek fetches bodies without setting \Seen
	FetchPeek FetchOption = 1 << iota
)

// ProxyConfig describes an optional proxy the transport tunnels through.
// Socket is either "tcp://host:port" / "http://host:port" for an HTTP CONNECT
// proxy or "socks5://host:port".
type ProxyConfig struct {
	Socket   string `mapstructure:"socket" yaml:"socket"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// Options are the query defaults a Dialer hands to every Query it creates
type Options struct {
	DateFormat  string       `mapstructure:"date_format" yaml:"date_format"`
	Sequence    SequenceMode `mapstructure:"sequence" yaml:"sequence"`
	FetchOption FetchOption  `mapstructure:"fetch_option" yaml:"fetch_option"`
	FetchBody   bool         `mapstructure:"fetch_body" yaml:"fetch_body"`
	FetchFlags  bool         `mapstructure:"fetch_flags" yaml:"fetch_flags"`
	FetchOrder  Order        `mapstructure:"fetch_order" yaml:"fetch_order"`
	SoftFail    bool         `mapstructure:"soft_fail" yaml:"soft_fail"`
	MessageKey  KeyStrategy  `mapstructure:"message_key" yaml:"message_key"`
	Extensions  []string     `mapstructure:"extensions" yaml:"extensions"`
}

// Config holds everything needed to open and drive one connection.
// It is built once and passed to New; nothing reads it from package state.
type Config struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Encryption     Encryption    `mapstructure:"encryption" yaml:"encryption"`
	ValidateCert   bool          `mapstructure:"validate_cert" yaml:"validate_cert"`
	Username       string        `mapstructure:"username" yaml:"username"`
	Password       string        `mapstructure:"password" yaml:"password"`
	Authentication string        `mapstructure:"authentication" yaml:"authentication"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Proxy          ProxyConfig   `mapstructure:"proxy" yaml:"proxy"`
	Debug          bool          `mapstructure:"debug" yaml:"debug"`
	Options        Options       `mapstructure:"options" yaml:"options"`

	// Events receives folder and message notifications. May be nil.
	Events *Events `mapstructure:"-" yaml:"-"`
	// Transport overrides the default network transport, mostly for tests.
	Transport Transport `mapstructure:"-" yaml:"-"`
}

// DefaultOptions returns the query defaults used when a Config leaves them empty
func DefaultOptions() Options {
	return Options{
		DateFormat:  DefaultDateFormat,
		Sequence:    SequenceUID,
		FetchOption: FetchPeek,
		FetchBody:   true,
		FetchFlags:  true,
		FetchOrder:  OrderAsc,
		MessageKey:  KeyByList,
	}
}

// DefaultConfig returns a Config for an implicit TLS connection on port 993
func DefaultConfig() Config {
	return Config{
		Port:         DefaultPort,
		Encryption:   EncryptionSSL,
		ValidateCert: true,
		Timeout:      DefaultTimeout,
		Options:      DefaultOptions(),
	}
}

// Validate checks the fields New cannot work without
func (c Config) Validate() error {
	if c.Host == "" && c.Transport == nil {
		return fmt.Errorf("imap config: host is required")
	}
	switch c.Encryption {
	case EncryptionNone, EncryptionNoTLS, EncryptionSSL, EncryptionTLS, EncryptionStartTLS:
	default:
		return fmt.Errorf("imap config: unknown encryption %q", c.Encryption)
	}
	switch strings.ToLower(c.Authentication) {
	case "", "login", "oauth":
	default:
		return fmt.Errorf("imap config: unknown authentication %q", c.Authentication)
	}
	switch c.Options.FetchOrder {
	case "", OrderAsc, OrderDesc:
	default:
		return fmt.Errorf("imap config: unknown fetch order %q", c.Options.FetchOrder)
	}
	return nil
}

// withDefaults fills empty fields from DefaultConfig
func (c Config) withDefaults() Config {
	def := DefaultOptions()
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Options.DateFormat == "" {
		c.Options.DateFormat = def.DateFormat
	}
	if c.Options.FetchOrder == "" {
		c.Options.FetchOrder = def.FetchOrder
	}
	if c.Options.MessageKey == "" {
		c.Options.MessageKey = def.MessageKey
	}
	return c
}

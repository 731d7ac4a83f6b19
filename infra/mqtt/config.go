package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"
)

// Config defines the broker connection and topic layout.
type Config struct {
	Broker      string `json:"broker"`
	ClientID    string `json:"client_id"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	TopicPrefix string `json:"topic_prefix"`
	UseTLS      bool   `json:"use_tls"`
	ClientCert  string `json:"client_cert"`
	ClientKey   string `json:"client_key"`
	CABundle    string `json:"ca_bundle"`
	AuthMethod  string `json:"auth_method"`
	// QoS per topic class: control, command, status, ack, telemetry.
	QoS        map[string]byte `json:"qos"`
	LWTTopic   string          `json:"lwt_topic"`
	LWTPayload string          `json:"lwt_payload"`
	LWTQoS     byte            `json:"lwt_qos"`
	LWTRetain  bool            `json:"lwt_retain"`
	MaxRetries int             `json:"max_retries"`
	BackoffMS  int             `json:"backoff_ms"`
	// AckTimeoutMS enables waiting for the inverter bridge to acknowledge a
	// command on <prefix>/control/ack. Zero disables it.
	AckTimeoutMS int             `json:"ack_timeout_ms"`
	Telemetry    TelemetryConfig `json:"telemetry"`
	TLSConfig    *tls.Config     `json:"-"`
}

// TelemetryConfig maps battery readings to topics. Relative topics are
// resolved under the prefix.
type TelemetryConfig struct {
	SOCTopic         string `json:"soc_topic"`
	TemperatureTopic string `json:"temperature_topic"`
	MaxAgeSeconds    int    `json:"max_age_seconds"`
}

// Enabled reports whether a broker is configured.
func (c Config) Enabled() bool { return c.Broker != "" }

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.ClientID == "" {
		c.ClientID = "eosbridge"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "eosbridge"
	}
	c.TopicPrefix = strings.TrimSuffix(c.TopicPrefix, "/")
	if c.LWTTopic == "" {
		c.LWTTopic = c.TopicPrefix + "/availability"
		c.LWTPayload = "offline"
		c.LWTRetain = true
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS == 0 {
		c.BackoffMS = 100
	}
	if c.Telemetry.MaxAgeSeconds == 0 {
		c.Telemetry.MaxAgeSeconds = 300
	}
}

// Validate checks the configuration when a broker is set.
func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if c.UseTLS && c.TLSConfig == nil && (c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "") {
		return fmt.Errorf("tls requires client_cert, client_key and ca_bundle")
	}
	if c.MaxRetries < 0 || c.BackoffMS < 0 || c.AckTimeoutMS < 0 {
		return fmt.Errorf("retry and timeout settings must not be negative")
	}
	return nil
}

// Topic resolves a topic relative to the prefix. Absolute topics start with
// a slash, which is stripped.
func (c Config) Topic(t string) string {
	if strings.HasPrefix(t, "/") {
		return strings.TrimPrefix(t, "/")
	}
	return c.TopicPrefix + "/" + t
}

func (c Config) qos(class string) byte {
	return c.QoS[class]
}

func (c Config) backoff() time.Duration { return time.Duration(c.BackoffMS) * time.Millisecond }

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caBytes) {
		return nil, fmt.Errorf("ca bundle %s contains no certificates", c.CABundle)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}, nil
}

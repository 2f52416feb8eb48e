package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/cloudmsg/amqp-device-go/pkg/amqpio"
	"github.com/cloudmsg/amqp-device-go/pkg/connection"
	"github.com/cloudmsg/amqp-device-go/pkg/credential"
	"github.com/cloudmsg/amqp-device-go/pkg/log"
)

// Config configures a Transport.
type Config struct {
	// DeviceID identifies the device (at most 128 characters).
	DeviceID string

	// At most one mechanism may be set. With neither DeviceKey nor
	// DeviceSasToken the transport authenticates with X.509; the material
	// may also be supplied later through SetOption.
	DeviceKey       string
	DeviceSasToken  string
	X509Certificate string
	X509PrivateKey  string

	// HubName and HubSuffix form the hub host name "<name>.<suffix>".
	HubName   string
	HubSuffix string

	// GatewayHostName, when set, is where the connection goes instead of
	// the hub host.
	GatewayHostName string

	// UseWebSockets tunnels AMQP over secure WebSockets (port 443).
	UseWebSockets bool

	// Port overrides the service port. Zero selects the provider default.
	Port int

	// WaitingQueue is the caller-owned queue of outbound events. Required.
	WaitingQueue *EventQueue

	// Logger receives operational logs. Nil means silent.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Nil disables capture.
	ProtocolLogger log.Logger

	// MetricsRegisterer registers the transport metrics. Nil disables them.
	MetricsRegisterer prometheus.Registerer

	// Backoff paces connect attempts once OptionRetryBackoff is on. Nil uses
	// connection.NewBackoff.
	Backoff *connection.Backoff

	// Clock defaults to SystemClock.
	Clock Clock

	// Provider supplies the AMQP stack. Defaults to a go-amqp provider.
	Provider amqpio.Provider

	// ownsCapture is set when ProtocolLogger was opened by FileConfig.Config;
	// the transport then closes it on Destroy.
	ownsCapture bool
}

// Validate checks the configuration without creating anything.
func (c *Config) Validate() error {
	var errs []error
	if c.WaitingQueue == nil {
		errs = append(errs, ErrNilQueue)
	}
	if err := credential.ValidateDeviceID(c.DeviceID); err != nil {
		errs = append(errs, err)
	}
	if _, err := resolveAddresses(c); err != nil {
		errs = append(errs, err)
	}
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%w: port %d", ErrInvalidOption, c.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) credentialParams() credential.Params {
	return credential.Params{
		DeviceID:        c.DeviceID,
		DeviceKey:       c.DeviceKey,
		DeviceSasToken:  c.DeviceSasToken,
		X509Certificate: c.X509Certificate,
		X509PrivateKey:  c.X509PrivateKey,
	}
}

// FileConfig is the YAML form of a device configuration.
//
//	device_id: thermostat-7
//	device_key: c2VjcmV0
//	hub_name: contoso
//	hub_suffix: azure-devices.net
//	websockets: true
//	capture_dir: /var/log/device
//	options:
//	  sas_token_lifetime: 7200000
//	  logtrace: true
type FileConfig struct {
	DeviceID        string `yaml:"device_id"`
	DeviceKey       string `yaml:"device_key"`
	DeviceSasToken  string `yaml:"sas_token"`
	CertificateFile string `yaml:"certificate_file"`
	PrivateKeyFile  string `yaml:"private_key_file"`

	HubName         string `yaml:"hub_name"`
	HubSuffix       string `yaml:"hub_suffix"`
	GatewayHostName string `yaml:"gateway_host_name"`
	WebSockets      bool   `yaml:"websockets"`
	Port            int    `yaml:"port"`

	// TrustedCertsFile is a PEM bundle passed to the TLS IO as TrustedCerts.
	TrustedCertsFile string `yaml:"trusted_certs_file"`

	// CaptureDir, when set, receives one protocol capture file per
	// transport, named by log.CapturePath.
	CaptureDir string `yaml:"capture_dir"`

	// CaptureLog also writes capture events to the operational logger.
	CaptureLog bool `yaml:"capture_log"`

	// Options are applied with SetOption after construction.
	Options map[string]any `yaml:"options"`
}

// ParseConfig parses a device configuration from YAML bytes.
func ParseConfig(data []byte) (*FileConfig, error) {
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parsing device config: %w", err)
	}
	if fc.DeviceID == "" {
		return nil, fmt.Errorf("parsing device config: %w", credential.ErrDeviceIDRequired)
	}
	return &fc, nil
}

// LoadConfig loads and parses a device configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseConfig(data)
}

// Config returns the transport configuration, reading any referenced
// certificate files. logger becomes Config.Logger. When capture is
// configured Config opens the capture file; New takes ownership of it and
// Destroy closes it.
func (fc *FileConfig) Config(queue *EventQueue, logger *slog.Logger) (Config, error) {
	cfg := Config{
		DeviceID:        fc.DeviceID,
		DeviceKey:       fc.DeviceKey,
		DeviceSasToken:  fc.DeviceSasToken,
		HubName:         fc.HubName,
		HubSuffix:       fc.HubSuffix,
		GatewayHostName: fc.GatewayHostName,
		UseWebSockets:   fc.WebSockets,
		Port:            fc.Port,
		WaitingQueue:    queue,
		Logger:          logger,
	}
	if fc.CertificateFile != "" || fc.PrivateKeyFile != "" {
		cred, err := credential.X509FromPEMFiles(fc.DeviceID, fc.CertificateFile, fc.PrivateKeyFile)
		if err != nil {
			return Config{}, err
		}
		cfg.X509Certificate = cred.Certificate()
		cfg.X509PrivateKey = cred.PrivateKey()
	}

	var sinks []log.Logger
	if fc.CaptureDir != "" {
		file, err := log.NewFileLogger(log.CapturePath(fc.CaptureDir, fc.DeviceID, time.Now()))
		if err != nil {
			return Config{}, err
		}
		sinks = append(sinks, file)
	}
	if fc.CaptureLog && logger != nil {
		sinks = append(sinks, log.NewSlogAdapter(logger))
	}
	if capture := log.Combine(sinks...); capture != nil {
		cfg.ProtocolLogger = capture
		cfg.ownsCapture = true
	}
	return cfg, nil
}

// TransportOptions returns the options to apply after construction,
// including the trusted certificate bundle.
func (fc *FileConfig) TransportOptions() (map[string]any, error) {
	opts := make(map[string]any, len(fc.Options)+1)
	for name, value := range fc.Options {
		opts[name] = value
	}
	if fc.TrustedCertsFile != "" {
		bundle, err := os.ReadFile(fc.TrustedCertsFile)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", fc.TrustedCertsFile, err)
		}
		opts[amqpio.OptionTrustedCerts] = string(bundle)
	}
	return opts, nil
}

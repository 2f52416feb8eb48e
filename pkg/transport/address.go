package transport

import (
	"fmt"

	"github.com/cloudmsg/amqp-device-go/pkg/credential"
)

// Fixed link endpoints and CBS parameters.
const (
	senderSource   = "ingress"
	receiverTarget = "ingress-rx"

	// TokenType is the CBS token type of SAS tokens.
	TokenType = "servicebus.windows.net:sastoken"

	// ClientVersionProperty identifies the client on link attach.
	ClientVersionProperty = "com.microsoft:client-version"
)

// addresses holds the per-device endpoints derived from the configuration.
type addresses struct {
	// host is where the connection goes.
	host string
	// hubHost is the hub FQDN used in device paths.
	hubHost string

	devicePath string
	send       string
	receive    string
}

func resolveAddresses(cfg *Config) (addresses, error) {
	var hubHost string
	if cfg.HubName != "" && cfg.HubSuffix != "" {
		hubHost = cfg.HubName + "." + cfg.HubSuffix
	}
	host := cfg.GatewayHostName
	if host == "" {
		host = hubHost
	}
	if hubHost == "" {
		hubHost = host
	}
	if host == "" {
		return addresses{}, ErrHostRequired
	}
	for _, h := range []string{host, hubHost} {
		if err := credential.ValidateHostName(h); err != nil {
			return addresses{}, fmt.Errorf("%w: %q", err, h)
		}
	}

	devicePath := hubHost + "/devices/" + cfg.DeviceID
	return addresses{
		host:       host,
		hubHost:    hubHost,
		devicePath: devicePath,
		send:       "amqps://" + devicePath + "/messages/events",
		receive:    "amqps://" + devicePath + "/messages/devicebound",
	}, nil
}

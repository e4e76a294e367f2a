// Package transports imports all built-in transports for auto-registration.
// Import this package to have all transports registered with the default registry.
package transports

import (
	// Import all transports for side-effect registration
	_ "github.com/drblury/riskwire/transport/aws"
	_ "github.com/drblury/riskwire/transport/channel"
	_ "github.com/drblury/riskwire/transport/http"
	_ "github.com/drblury/riskwire/transport/io"
	_ "github.com/drblury/riskwire/transport/jetstream"
	_ "github.com/drblury/riskwire/transport/kafka"
	_ "github.com/drblury/riskwire/transport/nats"
	_ "github.com/drblury/riskwire/transport/rabbitmq"
)

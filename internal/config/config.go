// Package config reads per-service configuration from the environment.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type Orders struct {
	Port         string        `env:"PORT" envDefault:"8081"`
	PostgresURL  string        `env:"POSTGRES_URL,required"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS,required" envSeparator:","`
	SagaTimeout  time.Duration `env:"SAGA_TIMEOUT" envDefault:"2m"`
	ReapInterval time.Duration `env:"REAP_INTERVAL" envDefault:"30s"`
}

type Payment struct {
	Port         string   `env:"PORT" envDefault:"8082"`
	PostgresURL  string   `env:"POSTGRES_URL,required"`
	KafkaBrokers []string `env:"KAFKA_BROKERS,required" envSeparator:","`
	OrdersURL    string   `env:"ORDERS_SERVICE_URL,required"`
}

type Inventory struct {
	Port             string        `env:"PORT" envDefault:"8083"`
	PostgresURL      string        `env:"POSTGRES_URL,required"`
	KafkaBrokers     []string      `env:"KAFKA_BROKERS,required" envSeparator:","`
	OrdersURL        string        `env:"ORDERS_SERVICE_URL,required"`
	FulfillmentDelay time.Duration `env:"FULFILLMENT_DELAY" envDefault:"500ms"`
}

type Delivery struct {
	Port         string        `env:"PORT" envDefault:"8084"`
	PostgresURL  string        `env:"POSTGRES_URL,required"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS,required" envSeparator:","`
	OrdersURL    string        `env:"ORDERS_SERVICE_URL,required"`
	TransitDelay time.Duration `env:"TRANSIT_DELAY" envDefault:"700ms"`
	SuccessRate  float64       `env:"DELIVERY_SUCCESS_RATE" envDefault:"0.85"`
}

type Gateway struct {
	Port         string `env:"PORT" envDefault:"8080"`
	OrdersURL    string `env:"ORDERS_SERVICE_URL,required"`
	PaymentURL   string `env:"PAYMENT_SERVICE_URL,required"`
	InventoryURL string `env:"INVENTORY_SERVICE_URL,required"`
	DeliveryURL  string `env:"DELIVERY_SERVICE_URL,required"`
}

// Load parses one of the service config structs from the environment.
func Load[T any]() (T, error) {
	return env.ParseAs[T]()
}

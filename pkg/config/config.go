package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/salmaimassenda2023/order-service/pkg/utils"
)

type Config struct {
	Env      string   `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTP     `yaml:"http"`
	Postgres PG       `yaml:"postgres"`
	Kafka    Kafka    `yaml:"kafka"`
	Services Services `yaml:"services"`
	Saga     Saga     `yaml:"saga"`
	Log      Log      `yaml:"log"`
}

type Log struct {
	Level string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

type HTTP struct {
	Port    string        `yaml:"port" env:"HTTP_PORT" env-default:":8070"`
	Timeout time.Duration `yaml:"timeout" env-default:"4s"`
}

type PG struct {
	URL string `yaml:"url" env:"DB_URL"`
}

type Kafka struct {
	Brokers           []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	ConfirmationTopic string   `yaml:"confirmation_topic" env:"CONFIRMATION_TOPIC" env-default:"order_confirmations"`
}

type Services struct {
	CustomerURL string `yaml:"customer_url" env:"CUSTOMER_SERVICE_URL" env-default:"http://localhost:8090"`
	PaymentURL  string `yaml:"payment_url" env:"PAYMENT_SERVICE_URL" env-default:"http://localhost:8060"`
}

type Saga struct {
	// Bound on every remote call the saga makes. None of the steps may
	// block for longer than this.
	StepTimeout time.Duration `yaml:"step_timeout" env:"SAGA_STEP_TIMEOUT" env-default:"3s"`
}

func MustLoad() *Config {
	configPath := utils.EnvOrDefault("CONFIG_PATH", "./config/local.yaml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("config file does not exists: %v\n", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("error reading config: %v", err)
	}

	return &cfg
}

package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env-default:"local"`
	Tokens     `yaml:"tokens"`
	Postgres   `yaml:"postgres"`
	Mail       `yaml:"mail"`
	Admin      `yaml:"admin"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Tokens struct {
	// Empty or too-short secrets trigger an ephemeral signing key at startup.
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env-default:"24h"`
}

type Mail struct {
	Primary   SMTPServer `yaml:"primary"`
	Secondary SMTPServer `yaml:"secondary"`
	Queue     MailQueue  `yaml:"queue"`
}

type SMTPServer struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" env-default:"587"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type MailQueue struct {
	URL       string `yaml:"url"`
	QueueName string `yaml:"queue_name" env-default:"emails"`
}

type Admin struct {
	Username string `yaml:"username" env-default:"admin"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD" env-default:"admin123"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}

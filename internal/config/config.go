package config

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingKey indica que falta material criptografico obligatorio.
var ErrMissingKey = errors.New("missing key material")

// Config centraliza la configuración del servicio. Se construye una sola vez al arrancar.
type Config struct {
	HTTPPort        string `env:"HTTP_PORT" envDefault:"8080"`
	AppEnv          string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL     string `env:"DATABASE_URL,required"`
	SessionSecret   string `env:"SESSION_SECRET,required"`
	SessionTTLHours int    `env:"SESSION_TTL_HOURS" envDefault:"168"`

	OTPHasher               string `env:"OTP_HASHER" envDefault:"bcrypt"`
	OTPBcryptCost           int    `env:"OTP_BCRYPT_COST" envDefault:"10"`
	OTPRequestWindowMinutes int    `env:"OTP_REQUEST_WINDOW_MINUTES" envDefault:"10"`
	OTPRequestMax           int    `env:"OTP_REQUEST_MAX" envDefault:"5"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPass     string `env:"SMTP_PASS"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	APIKeyPrefix string `env:"API_KEY_PREFIX" envDefault:"cdk"`

	Keys    KeyConfig
	Storage StorageConfig
}

// KeyConfig describe el par RSA de los service tokens: PEM en linea o ruta a archivo.
type KeyConfig struct {
	PrivateKeyPEM  string `env:"SERVICE_TOKEN_PRIVATE_KEY"`
	PrivateKeyFile string `env:"SERVICE_TOKEN_PRIVATE_KEY_FILE"`
	PublicKeyPEM   string `env:"SERVICE_TOKEN_PUBLIC_KEY"`
	PublicKeyFile  string `env:"SERVICE_TOKEN_PUBLIC_KEY_FILE"`
}

// StorageConfig apunta al endpoint S3 compatible y a su API de credenciales temporales.
type StorageConfig struct {
	Endpoint           string `env:"STORAGE_ENDPOINT"`
	Bucket             string `env:"STORAGE_BUCKET" envDefault:"bot-files"`
	AccessKeyID        string `env:"STORAGE_ACCESS_KEY_ID"`
	SecretAccessKey    string `env:"STORAGE_SECRET_ACCESS_KEY"`
	AccountID          string `env:"STORAGE_ACCOUNT_ID"`
	APIToken           string `env:"STORAGE_API_TOKEN"`
	APIBaseURL         string `env:"STORAGE_API_BASE_URL" envDefault:"https://api.cloudflare.com/client/v4"`
	UseTempCredentials bool   `env:"STORAGE_USE_TEMP_CREDENTIALS" envDefault:"false"`
}

// Enabled indica si hay suficiente configuracion para firmar URLs.
func (s StorageConfig) Enabled() bool {
	return strings.TrimSpace(s.Endpoint) != "" &&
		strings.TrimSpace(s.AccessKeyID) != "" &&
		strings.TrimSpace(s.SecretAccessKey) != ""
}

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadStorageConfig carga solo la parte de almacenamiento (usada por authctl).
func LoadStorageConfig() (StorageConfig, error) {
	var cfg StorageConfig
	if err := env.Parse(&cfg); err != nil {
		return StorageConfig{}, err
	}
	return cfg, nil
}

// LoadKeyConfig carga solo las rutas/PEM de las llaves (usada por authctl).
func LoadKeyConfig() (KeyConfig, error) {
	var cfg KeyConfig
	if err := env.Parse(&cfg); err != nil {
		return KeyConfig{}, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.AppEnv), "production")
}

// Keys contiene el material RSA ya parseado.
type Keys struct {
	ServicePrivateKey *rsa.PrivateKey
	ServicePublicKey  *rsa.PublicKey
}

// LoadKeys lee y parsea las llaves una sola vez. La llave privada es obligatoria;
// la publica se deriva de ella si no se configura y, si se configura, debe coincidir.
func LoadKeys(cfg KeyConfig) (*Keys, error) {
	privPEM, err := readPEM(cfg.PrivateKeyPEM, cfg.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("service token private key: %w", err)
	}
	if privPEM == nil {
		return nil, fmt.Errorf("service token private key: %w", ErrMissingKey)
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parse service token private key: %w", err)
	}

	keys := &Keys{ServicePrivateKey: priv, ServicePublicKey: &priv.PublicKey}

	pubPEM, err := readPEM(cfg.PublicKeyPEM, cfg.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("service token public key: %w", err)
	}
	if pubPEM != nil {
		pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
		if err != nil {
			return nil, fmt.Errorf("parse service token public key: %w", err)
		}
		if !pub.Equal(&priv.PublicKey) {
			return nil, errors.New("service token public key does not match private key")
		}
		keys.ServicePublicKey = pub
	}
	return keys, nil
}

// LoadPublicKey carga solo la llave publica, como haria un verificador externo.
func LoadPublicKey(cfg KeyConfig) (*rsa.PublicKey, error) {
	pubPEM, err := readPEM(cfg.PublicKeyPEM, cfg.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("service token public key: %w", err)
	}
	if pubPEM == nil {
		return nil, fmt.Errorf("service token public key: %w", ErrMissingKey)
	}
	return jwt.ParseRSAPublicKeyFromPEM(pubPEM)
}

// readPEM prioriza el valor en linea y expande los "\n" literales.
func readPEM(inline, path string) ([]byte, error) {
	if v := strings.TrimSpace(inline); v != "" {
		return []byte(strings.ReplaceAll(v, `\n`, "\n")), nil
	}
	if p := strings.TrimSpace(path); p != "" {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	return nil, nil
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Copyright (c) 2025 Spruce Health

// Package config loads service settings from an optional YAML file overlaid
// with environment variables. It is read once at startup.
package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrInsecureBaseURL rejects callback base URLs Twilio could not (or should not) reach
var ErrInsecureBaseURL = errors.New("public base URL must be https and not point at a local host")

type Server struct {
	Addr string `yaml:"addr"`
	// PublicURL is where Twilio reaches this service (WEBHOOK_BASE_URL)
	PublicURL          string        `yaml:"public_url"`
	ValidateSignatures bool          `yaml:"validate_signatures"`
	APIToken           string        `yaml:"api_token"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ShutdownGrace      time.Duration `yaml:"shutdown_grace"`
}

type Twilio struct {
	AccountSID     string `yaml:"account_sid"`
	AuthToken      string `yaml:"auth_token"`
	FromNumber     string `yaml:"from_number"`
	// DefaultCountry normalizes national numbers of contacts without a country
	DefaultCountry string `yaml:"default_country"`
}

type OpenAI struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float32 `yaml:"temperature"`
}

type Pinecone struct {
	APIKey    string `yaml:"api_key"`
	IndexHost string `yaml:"index_host"`
	IndexName string `yaml:"index_name"`
	Namespace string `yaml:"namespace"`
}

type ElevenLabs struct {
	APIKey  string `yaml:"api_key"`
	VoiceID string `yaml:"voice_id"`
	ModelID string `yaml:"model_id"`
}

type Speech struct {
	NativeVoice      string        `yaml:"native_voice"`
	Language         string        `yaml:"language"`
	SynthesisTimeout time.Duration `yaml:"synthesis_timeout"`
	// Clips selects where synthesized audio lives: memory, redis or s3
	Clips    string        `yaml:"clips"`
	ClipTTL  time.Duration `yaml:"clip_ttl"`
	S3Bucket string        `yaml:"s3_bucket"`
	S3Prefix string        `yaml:"s3_prefix"`
	Prewarm  bool          `yaml:"prewarm"`
}

type Store struct {
	// Driver is one of memory, sqlite, postgres, dynamodb
	Driver        string `yaml:"driver"`
	DSN           string `yaml:"dsn"`
	CallsTable    string `yaml:"calls_table"`
	ContactsTable string `yaml:"contacts_table"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Events struct {
	// Backend is inprocess or redis
	Backend       string `yaml:"backend"`
	ConsumerGroup string `yaml:"consumer_group"`
	Consumer      string `yaml:"consumer"`
}

type Dialog struct {
	Company          string        `yaml:"company"`
	MaxReprompts     int           `yaml:"max_reprompts"`
	MaxTurns         int           `yaml:"max_turns"`
	ContextK         int           `yaml:"context_k"`
	RetrievalTimeout time.Duration `yaml:"retrieval_timeout"`
	ComposeTimeout   time.Duration `yaml:"compose_timeout"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Server     Server     `yaml:"server"`
	Twilio     Twilio     `yaml:"twilio"`
	OpenAI     OpenAI     `yaml:"openai"`
	Pinecone   Pinecone   `yaml:"pinecone"`
	ElevenLabs ElevenLabs `yaml:"elevenlabs"`
	Speech     Speech     `yaml:"speech"`
	Store      Store      `yaml:"store"`
	Redis      Redis      `yaml:"redis"`
	Events     Events     `yaml:"events"`
	Dialog     Dialog     `yaml:"dialog"`
	Logging    Logging    `yaml:"logging"`
}

// Default returns the settings used when nothing overrides them
func Default() Config {
	return Config{
		Server: Server{
			Addr:          ":8080",
			ReadTimeout:   15 * time.Second,
			WriteTimeout:  30 * time.Second,
			ShutdownGrace: 20 * time.Second,
		},
		Twilio: Twilio{
			DefaultCountry: "india",
		},
		OpenAI: OpenAI{
			ChatModel:      "gpt-3.5-turbo",
			EmbeddingModel: "text-embedding-3-small",
			MaxTokens:      150,
			Temperature:    0.2,
		},
		Speech: Speech{
			NativeVoice:      "Polly.Amy",
			Language:         "en-US",
			SynthesisTimeout: 6 * time.Second,
			Clips:            "memory",
			ClipTTL:          time.Hour,
			S3Prefix:         "clips",
			Prewarm:          true,
		},
		Store: Store{
			Driver:        "sqlite",
			DSN:           "voi.db",
			CallsTable:    "voi_calls",
			ContactsTable: "voi_contacts",
		},
		Events: Events{
			Backend:       "inprocess",
			ConsumerGroup: "voi",
			Consumer:      hostname(),
		},
		Dialog: Dialog{
			Company:          "Easify",
			MaxReprompts:     2,
			MaxTurns:         6,
			ContextK:         3,
			RetrievalTimeout: 5 * time.Second,
			ComposeTimeout:   8 * time.Second,
		},
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads path (if not empty) over the defaults, then applies the environment
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, errors.Wrapf(err, "parse config %s", path)
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				*dst = strings.TrimSpace(v)
				return
			}
		}
	}
	boolean := func(dst *bool, key string) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str(&c.Server.Addr, "VOI_ADDR")
	if port, ok := lookup("PORT"); ok && strings.TrimSpace(port) != "" {
		c.Server.Addr = ":" + strings.TrimSpace(port)
	}
	str(&c.Server.PublicURL, "WEBHOOK_BASE_URL")
	str(&c.Server.APIToken, "VOI_API_TOKEN")
	boolean(&c.Server.ValidateSignatures, "VOI_VALIDATE_SIGNATURES")

	str(&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	str(&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	str(&c.Twilio.FromNumber, "TWILIO_PHONE_NUMBER")
	str(&c.Twilio.DefaultCountry, "VOI_DEFAULT_COUNTRY")

	str(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	str(&c.OpenAI.BaseURL, "OPENAI_BASE_URL")

	str(&c.Pinecone.APIKey, "PINECONE_API_KEY")
	str(&c.Pinecone.IndexHost, "PINECONE_INDEX_HOST")
	str(&c.Pinecone.IndexName, "PINECONE_INDEX")

	str(&c.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	str(&c.ElevenLabs.VoiceID, "ELEVENLABS_VOICE_ID")

	str(&c.Speech.Clips, "VOI_CLIPS")
	str(&c.Speech.S3Bucket, "VOI_S3_BUCKET")

	str(&c.Store.Driver, "VOI_STORE_DRIVER")
	str(&c.Store.DSN, "DATABASE_URL")

	str(&c.Redis.Addr, "REDIS_ADDR")
	str(&c.Redis.Password, "REDIS_PASSWORD")
	str(&c.Events.Backend, "VOI_EVENTS_BACKEND")

	str(&c.Logging.Level, "VOI_LOG_LEVEL")
	str(&c.Logging.Format, "VOI_LOG_FORMAT")
}

// Validate checks what `serve` needs before accepting traffic
func (c Config) Validate() error {
	if _, err := ValidatePublicURL(c.Server.PublicURL); err != nil {
		return err
	}
	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		return errors.New("twilio account sid and auth token are required")
	}
	if c.Twilio.FromNumber == "" {
		return errors.New("twilio from number is required")
	}
	if c.OpenAI.APIKey == "" {
		return errors.New("openai api key is required")
	}
	if c.Pinecone.APIKey == "" || (c.Pinecone.IndexHost == "" && c.Pinecone.IndexName == "") {
		return errors.New("pinecone api key and index host or name are required")
	}

	switch c.Store.Driver {
	case "memory", "sqlite", "postgres", "dynamodb":
	default:
		return errors.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Speech.Clips {
	case "memory", "redis", "s3":
	default:
		return errors.Errorf("unknown clip store %q", c.Speech.Clips)
	}
	if c.Speech.Clips == "s3" && c.Speech.S3Bucket == "" {
		return errors.New("s3 clip store needs a bucket")
	}
	switch c.Events.Backend {
	case "inprocess", "redis":
	default:
		return errors.Errorf("unknown events backend %q", c.Events.Backend)
	}
	if (c.Speech.Clips == "redis" || c.Events.Backend == "redis") && c.Redis.Addr == "" {
		return errors.New("redis address is required")
	}
	if c.Dialog.MaxReprompts < 0 || c.Dialog.MaxTurns <= 0 || c.Dialog.ContextK <= 0 {
		return errors.New("dialog bounds must be positive")
	}
	return nil
}

// ValidatePublicURL parses raw and refuses anything Twilio should not call
// back: non-https schemes and loopback, private or unspecified hosts.
func ValidatePublicURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, errors.Wrapf(ErrInsecureBaseURL, "parse %q: %v", raw, err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return nil, errors.Wrapf(ErrInsecureBaseURL, "%q", raw)
	}
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return nil, errors.Wrapf(ErrInsecureBaseURL, "%q", raw)
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return nil, errors.Wrapf(ErrInsecureBaseURL, "%q", raw)
		}
	}
	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "voi"
	}
	return h
}

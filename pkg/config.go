package protocol

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
)

// Config holds the tunables shared by both roles.
type Config struct {
	MaxPayload        int           `json:"max_payload"`
	RetransmitTimeout time.Duration `json:"retransmit_timeout"`
	InitialSSThresh   int           `json:"initial_ssthresh"`
	MaxWindow         int           `json:"max_window"`
	DupAckThreshold   int           `json:"dup_ack_threshold"`
	MaxRetries        int           `json:"max_retries"` // 0 retries forever
	Linger            time.Duration `json:"linger"`
}

func DefaultConfig() Config {
	return Config{
		MaxPayload:        DefaultMaxPayload,
		RetransmitTimeout: 400 * time.Millisecond,
		InitialSSThresh:   64,
		MaxWindow:         256,
		DupAckThreshold:   3,
		MaxRetries:        0,
		Linger:            2 * time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.MaxPayload <= 0 || c.MaxPayload > MaxPayloadLimit:
		return errors.Errorf("max_payload %d out of range 1..%d", c.MaxPayload, MaxPayloadLimit)
	case c.RetransmitTimeout <= 0:
		return errors.Errorf("retransmit_timeout must be positive, got %s", c.RetransmitTimeout)
	case c.InitialSSThresh <= 0:
		return errors.Errorf("initial_ssthresh must be positive, got %d", c.InitialSSThresh)
	case c.MaxWindow <= 0:
		return errors.Errorf("max_window must be positive, got %d", c.MaxWindow)
	case c.DupAckThreshold <= 0:
		return errors.Errorf("dup_ack_threshold must be positive, got %d", c.DupAckThreshold)
	case c.MaxRetries < 0:
		return errors.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	case c.Linger < 0:
		return errors.Errorf("linger must not be negative, got %s", c.Linger)
	}
	return nil
}

// UnmarshalJSON accepts durations as Go duration strings ("400ms").
func (c *Config) UnmarshalJSON(b []byte) error {
	type plain Config
	aux := struct {
		*plain
		RetransmitTimeout string `json:"retransmit_timeout"`
		Linger            string `json:"linger"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}

	var err error
	if aux.RetransmitTimeout != "" {
		if c.RetransmitTimeout, err = time.ParseDuration(aux.RetransmitTimeout); err != nil {
			return errors.Wrap(err, "retransmit_timeout")
		}
	}
	if aux.Linger != "" {
		if c.Linger, err = time.ParseDuration(aux.Linger); err != nil {
			return errors.Wrap(err, "linger")
		}
	}
	return nil
}

// LoadConfig reads a JSON file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, errors.Wrap(err, "open config")
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "decode config %s", path)
	}
	return cfg, nil
}

// RegisterFlags binds every field to a flag defaulting to the current value.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(&c.MaxPayload, "max-payload", c.MaxPayload, "largest payload carried by one segment")
	fs.DurationVar(&c.RetransmitTimeout, "retransmit-timeout", c.RetransmitTimeout, "retransmission timeout")
	fs.IntVar(&c.InitialSSThresh, "initial-ssthresh", c.InitialSSThresh, "slow start threshold at connection start")
	fs.IntVar(&c.MaxWindow, "max-window", c.MaxWindow, "congestion window limit in segments")
	fs.IntVar(&c.DupAckThreshold, "dup-ack-threshold", c.DupAckThreshold, "duplicate ACKs that trigger fast retransmit")
	fs.IntVar(&c.MaxRetries, "max-retries", c.MaxRetries, "give up after this many consecutive timeouts (0 = retry forever)")
	fs.DurationVar(&c.Linger, "linger", c.Linger, "receiver wait after end of stream for retransmitted terminal segments")
}

// ApplyFile overrides every field whose flag was not set explicitly with the
// value from the config file at path.
func (c *Config) ApplyFile(path string, fs *pflag.FlagSet) error {
	fileCfg, err := LoadConfig(path)
	if err != nil {
		return err
	}

	if !fs.Changed("max-payload") {
		c.MaxPayload = fileCfg.MaxPayload
	}
	if !fs.Changed("retransmit-timeout") {
		c.RetransmitTimeout = fileCfg.RetransmitTimeout
	}
	if !fs.Changed("initial-ssthresh") {
		c.InitialSSThresh = fileCfg.InitialSSThresh
	}
	if !fs.Changed("max-window") {
		c.MaxWindow = fileCfg.MaxWindow
	}
	if !fs.Changed("dup-ack-threshold") {
		c.DupAckThreshold = fileCfg.DupAckThreshold
	}
	if !fs.Changed("max-retries") {
		c.MaxRetries = fileCfg.MaxRetries
	}
	if !fs.Changed("linger") {
		c.Linger = fileCfg.Linger
	}
	return nil
}

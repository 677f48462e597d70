package config

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v2"
	"moff.io/crowdfund/pkg/errors"
	"moff.io/crowdfund/pkg/log"
)

const DefaultPath = "internal/config/config.yml"

// DBCredential struct
type DBCredential struct {
	Address  string `yaml:"address"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func (c *DBCredential) Dsn() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s",
		c.Address, c.Port, c.User, c.Password, c.Database)
}

// GetRedisAddress returns host:port of the redis credential.
func (c *DBCredential) GetRedisAddress() string {
	return fmt.Sprintf("%v:%v", c.Address, c.Port)
}

// Configured reports whether an address was provided at all.
func (c *DBCredential) Configured() bool {
	return c.Address != ""
}

// Configuration struct
type Configuration struct {
	LogLevel         string         `yaml:"log_level"`
	SentryDSN        string         `yaml:"sentry_dsn"`
	LarkAlarmWebhook string         `yaml:"lark_alarm_webhook"`
	RedisCredential  DBCredential   `yaml:"redis"`
	Postgres         DBCredential   `yaml:"postgres"`
	KafkaServer      string         `yaml:"kafka-server"`
	MetadataServer   MetadataServer `yaml:"metadata_server"`
	Metadata         Metadata       `yaml:"metadata"`
	Chain            Chain          `yaml:"chain"`
	Wallet           Wallet         `yaml:"wallet"`
	Campaigns        Campaigns      `yaml:"campaigns"`
}

// MetadataServer configures the endpoint that serves contract address and ABI.
type MetadataServer struct {
	Listen          string        `yaml:"listen"`
	ContractName    string        `yaml:"contract_name"`
	ContractAddress string        `yaml:"contract_address"`
	ABIPath         string        `yaml:"abi_path"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	// RateLimitPerMinute is applied per client ip when redis is configured. Zero disables it.
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
	// Registry serves the latest deployment recorded in postgres instead of the static address.
	Registry bool `yaml:"registry"`
}

// Metadata configures the client side of the metadata endpoint.
type Metadata struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Chain struct {
	RPCURL              string        `yaml:"rpc_url"`
	ChainID             int64         `yaml:"chain_id"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
}

const (
	WalletKeystore      = "keystore"
	WalletWalletConnect = "walletconnect"
)

type Wallet struct {
	Kind          string `yaml:"kind"`
	KeystoreDir   string `yaml:"keystore_dir"`
	Account       string `yaml:"account"`
	PassphraseEnv string `yaml:"passphrase_env"`
	BridgeURL     string `yaml:"bridge_url"`
	QRCodeFile    string `yaml:"qr_code_file"`
}

type Campaigns struct {
	ReadsPerSecond int    `yaml:"reads_per_second"`
	EventTopic     string `yaml:"event_topic"`
}

// ApplyDefaults fills every unset field that has a sensible default.
func (c *Configuration) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	s := &c.MetadataServer
	if s.Listen == "" {
		s.Listen = ":5000"
	}
	if s.ContractName == "" {
		s.ContractName = "Crowdfunding"
	}
	if len(s.AllowedOrigins) == 0 {
		s.AllowedOrigins = []string{"http://localhost:5173"}
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 10 * time.Second
	}
	if c.Metadata.URL == "" {
		c.Metadata.URL = "http://localhost:5000/api/contracts"
	}
	if c.Metadata.Timeout <= 0 {
		c.Metadata.Timeout = 10 * time.Second
	}
	if c.Chain.RPCURL == "" {
		c.Chain.RPCURL = "http://127.0.0.1:8545"
	}
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 31337
	}
	if c.Chain.ConfirmationTimeout <= 0 {
		c.Chain.ConfirmationTimeout = 2 * time.Minute
	}
	if c.Wallet.Kind == "" {
		c.Wallet.Kind = WalletKeystore
	}
	if c.Wallet.QRCodeFile == "" {
		c.Wallet.QRCodeFile = "wallet_connect_qr.png"
	}
	if c.Campaigns.ReadsPerSecond <= 0 {
		c.Campaigns.ReadsPerSecond = 20
	}
	if c.Campaigns.EventTopic == "" {
		c.Campaigns.EventTopic = "crowdfund_campaigns"
	}
}

// Validate rejects configurations that can never work.
func (c *Configuration) Validate() error {
	switch c.Wallet.Kind {
	case WalletKeystore:
		if c.Wallet.KeystoreDir == "" {
			return errors.New("wallet.keystore_dir is required for the keystore wallet")
		}
	case WalletWalletConnect:
	default:
		return errors.Errorf("unknown wallet kind %q", c.Wallet.Kind)
	}
	if c.Wallet.Account != "" && !common.IsHexAddress(c.Wallet.Account) {
		return errors.Errorf("wallet.account %q is not a hex address", c.Wallet.Account)
	}
	if a := c.MetadataServer.ContractAddress; a != "" && !common.IsHexAddress(a) {
		return errors.Errorf("metadata_server.contract_address %q is not a hex address", a)
	}
	if c.MetadataServer.Registry && !c.Postgres.Configured() {
		return errors.New("metadata_server.registry requires postgres")
	}
	return nil
}

// Load decodes, defaults and validates the YAML file at path.
func Load(path string) (*Configuration, error) {
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Errorf("config file %s does not exist", path)
		}
		return nil, errors.Wrap(err, "read config file")
	}
	var t Configuration
	if err := yaml.Unmarshal(dat, &t); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}
	t.ApplyDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

var Global *Configuration

// Read loads the configuration at path into Global.
func Read(path string) error {
	log.Infof("Loading configuration file from %s", path)
	c, err := Load(path)
	if err != nil {
		return err
	}
	Global = c
	return nil
}

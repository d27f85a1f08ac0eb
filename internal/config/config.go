package config

import (
	"flag"
	"io/ioutil"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

// Configuration struct
type Configuration struct {
	ListenAddress    string         `yaml:"listen_address"`
	LogLevel         int            `yaml:"log_level"`
	SentryDSN        string         `yaml:"sentry_dsn"`
	Authorization    Authorization  `yaml:"authorization"`
	OwnerKey         OwnerKey       `yaml:"owner_key"`
	RPCOverrides     map[int]string `yaml:"rpc_overrides"`
	Relay            Relay          `yaml:"relay"`
	MaxDeployWorkers int            `yaml:"max_deploy_workers"`
}

// Authorization holds the remote 2FA service endpoint.
type Authorization struct {
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// OwnerKey configures the local dev wallet standing in for the
// browser-extension wallet capability.
type OwnerKey struct {
	PrivateKeyHex string `yaml:"private_key_hex"`
	ChainID       int    `yaml:"chain_id"`
}

type Relay struct {
	ClientName        string `yaml:"client_name"`
	ClientDescription string `yaml:"client_description"`
	ClientURL         string `yaml:"client_url"`
}

func readConfig(path string) (Configuration, error) {
	logrus.Info("Starting to load configuration file ...")
	dat, err := ioutil.ReadFile(path)
	if err != nil {
		logrus.Fatal(err)
	}
	t := Configuration{}
	err = yaml.Unmarshal(dat, &t)

	if err != nil {
		if os.IsNotExist(err) {
			logrus.Fatalf("file %s does not exist", path)
		} else {
			logrus.Fatalf("fail to decode config error: %v", err)
		}
	}
	t.applyDefaults()
	return t, nil
}

func (c *Configuration) applyDefaults() {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.Authorization.TimeoutSeconds == 0 {
		c.Authorization.TimeoutSeconds = 10
	}
	if c.MaxDeployWorkers == 0 {
		c.MaxDeployWorkers = 4
	}
	if c.Relay.ClientName == "" {
		c.Relay.ClientName = "Faktoro"
	}
	if c.Relay.ClientDescription == "" {
		c.Relay.ClientDescription = "2FA-secured smart contract wallet"
	}
}

var Global *Configuration

// Read reads configuration information from yml.
func Read() {
	configFilePath := flag.String("config-path", "internal/config/config.yml", "The path to the configuration file")
	flag.Parse()
	logrus.Infof("Loading configuration file from %s", *configFilePath)
	globalConfig, err := readConfig(*configFilePath)
	if err != nil {
		logrus.Fatal(err)
	}
	Global = &globalConfig
}

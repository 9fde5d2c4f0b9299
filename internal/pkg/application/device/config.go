package device

import (
	"fmt"
	"io"
	"time"

	yaml "gopkg.in/yaml.v2"
)

const (
	InterfaceTypeProperties string = "properties"
	InterfaceTypeDatastream string = "datastream"

	AggregationIndividual string = "individual"
	AggregationObject     string = "object"

	OwnershipServer string = "server"
	OwnershipDevice string = "device"

	DefaultRealm             = "test"
	DefaultValidationTimeout = 2 * time.Second
)

type InterfaceConfig struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Aggregation string `yaml:"aggregation"`
	Ownership   string `yaml:"ownership"`
}

func (ic InterfaceConfig) IsProperties() bool {
	return ic.Type == InterfaceTypeProperties
}

func (ic InterfaceConfig) IsObjectAggregated() bool {
	return ic.Aggregation == AggregationObject
}

type DatasetConfig struct {
	Name      string `yaml:"name"`
	Interface string `yaml:"interface"`
	Prefix    string `yaml:"prefix"`
}

type ValidationConfig struct {
	Timeout  time.Duration   `yaml:"timeout"`
	Datasets []DatasetConfig `yaml:"datasets"`
}

type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type PlatformConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

type Config struct {
	Realm      string            `yaml:"realm"`
	DeviceID   string            `yaml:"deviceId"`
	Platform   PlatformConfig    `yaml:"platform"`
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Validation ValidationConfig  `yaml:"validation"`
	Storage    StorageConfig     `yaml:"storage"`
}

func (c *Config) Interface(name string) (InterfaceConfig, bool) {
	for _, ic := range c.Interfaces {
		if ic.Name == name {
			return ic, true
		}
	}
	return InterfaceConfig{}, false
}

func LoadConfiguration(data io.Reader) (*Config, error) {

	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	err = yaml.Unmarshal(buf, &cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Realm == "" {
		cfg.Realm = DefaultRealm
	}

	if cfg.Validation.Timeout <= 0 {
		cfg.Validation.Timeout = DefaultValidationTimeout
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.DeviceID == "" {
		return fmt.Errorf("deviceId is required")
	}

	seen := map[string]bool{}

	for i := range c.Interfaces {
		ic := &c.Interfaces[i]

		if ic.Name == "" {
			return fmt.Errorf("interface %d has no name", i)
		}
		if seen[ic.Name] {
			return fmt.Errorf("interface %s is declared more than once", ic.Name)
		}
		seen[ic.Name] = true

		if ic.Type != InterfaceTypeProperties && ic.Type != InterfaceTypeDatastream {
			return fmt.Errorf("interface %s has unsupported type %q", ic.Name, ic.Type)
		}

		if ic.Aggregation == "" {
			ic.Aggregation = AggregationIndividual
		} else if ic.Aggregation != AggregationIndividual && ic.Aggregation != AggregationObject {
			return fmt.Errorf("interface %s has unsupported aggregation %q", ic.Name, ic.Aggregation)
		}

		if ic.IsProperties() && ic.IsObjectAggregated() {
			return fmt.Errorf("properties interface %s cannot be object aggregated", ic.Name)
		}

		if ic.Ownership == "" {
			ic.Ownership = OwnershipServer
		}
	}

	for _, ds := range c.Validation.Datasets {
		if _, ok := c.Interface(ds.Interface); !ok {
			return fmt.Errorf("dataset %s refers to unknown interface %s", ds.Name, ds.Interface)
		}
	}

	return nil
}

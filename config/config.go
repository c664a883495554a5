package config

import (
	"encoding/json"
	"os"
)

type Config struct {
	Storage StorageConfig `json:"storage"`
	Blob    BlobConfig    `json:"blob"`
	Event   EventConfig   `json:"event"`
	Gremlin GremlinConfig `json:"gremlin"`
	HTTP    HTTPConfig    `json:"http"`
	Log     LogConfig     `json:"log"`
	Tracing TracingConfig `json:"tracing"`
}

type StorageConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

type BlobConfig struct {
	Driver    string `json:"driver"`
	Directory string `json:"directory,omitempty"`
	Bucket    string `json:"bucket,omitempty"`
	Region    string `json:"region,omitempty"`
}

type EventConfig struct {
	Driver string `json:"driver"`
	URL    string `json:"url"`
}

// GremlinConfig points at the external graph database the provenance
// mirror and the query console talk to. Empty endpoint disables both.
type GremlinConfig struct {
	Endpoint string `json:"endpoint"`
	TimeoutS int    `json:"timeout_s,omitempty"`
}

type HTTPConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type LogConfig struct {
	Level string `json:"level"`
}

type TracingConfig struct {
	Exporter    string `json:"exporter,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`
	ServiceName string `json:"service_name,omitempty"`
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var cfg Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

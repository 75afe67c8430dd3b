package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Panel PanelConfig `yaml:"panel"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

type PanelConfig struct {
	Host      string `yaml:"host"`
	Port      string `yaml:"port"`
	SharedKey string `yaml:"shared_key"`
	UserCode  string `yaml:"user_code"`
}

type MQTTConfig struct {
	ClientID string `yaml:"client_id"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QOS      int    `yaml:"qos"`
	Retain   bool   `yaml:"retain"`
	Prefix   string `yaml:"prefix"`
	Clean    bool   `yaml:"clean"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Set default values
	if config.Panel.Port == "" {
		config.Panel.Port = "25301"
	}
	if config.MQTT.ClientID == "" {
		config.MQTT.ClientID = "unii-mqtt"
	}
	if config.MQTT.Host == "" {
		config.MQTT.Host = "localhost"
	}
	if config.MQTT.Port == 0 {
		config.MQTT.Port = 1883
	}
	if config.MQTT.Prefix == "" {
		config.MQTT.Prefix = "unii"
	}

	if config.Panel.Host == "" {
		return nil, fmt.Errorf("panel.host is required")
	}
	if config.Panel.SharedKey == "" {
		return nil, fmt.Errorf("panel.shared_key is required")
	}

	return &config, nil
}

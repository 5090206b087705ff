package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Thresholds maps sensor type to metric to the value above which an alert fires.
type Thresholds map[string]map[string]float64

// DefaultThresholds is the built-in alert table.
func DefaultThresholds() Thresholds {
	return Thresholds{
		"mq4":   {"gas": 50},
		"dht22": {"temperature": 25},
	}
}

type thresholdFile struct {
	Thresholds Thresholds `mapstructure:"thresholds"`
}

// LoadThresholds reads alert thresholds from a YAML, JSON or TOML file. An
// empty path yields the built-in table. Entries in the file replace the
// built-in value for the same sensor type and metric.
func LoadThresholds(path string) (Thresholds, error) {
	thresholds := DefaultThresholds()
	if path == "" {
		return thresholds, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read thresholds file %s: %w", path, err)
	}

	var file thresholdFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("failed to decode thresholds file %s: %w", path, err)
	}

	for sensorType, metrics := range file.Thresholds {
		if thresholds[sensorType] == nil {
			thresholds[sensorType] = make(map[string]float64, len(metrics))
		}
		for metric, limit := range metrics {
			thresholds[sensorType][metric] = limit
		}
	}

	return thresholds, nil
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

type Configuration struct {
	MaxEvents    int     `json:"max_events"`
	Skip         int     `json:"skip"`
	Verbosity    int     `json:"verbosity"`
	RunNumber    int     `json:"run_number"`
	FileIn       string  `json:"file_in"`
	FileOut      string  `json:"file_out"`
	NoiseFile    string  `json:"noise_file"`
	LightmapFile string  `json:"lightmap_file"`
	Threshold    float64 `json:"termination_thresh"`
	NoDB         bool    `json:"no_db"`
	Host         string  `json:"host"`
	User         string  `json:"user"`
	Passwd       string  `json:"pass"`
	DBName       string  `json:"dbname"`
	WriteData    bool    `json:"write_data"`
}

func LoadConfiguration(filename string) (Configuration, error) {
	var config Configuration

	// Set default values
	config.MaxEvents = 1000000000
	config.Skip = 0
	config.Verbosity = 0
	config.Threshold = 10
	config.NoDB = false
	config.Host = "exodb.slac.stanford.edu"
	config.User = "exoreader"
	config.Passwd = "readonly"
	config.DBName = "EXOCALIB"
	config.WriteData = true

	data, err := os.ReadFile(filename)
	if err != nil {
		return config, err
	}
	err = json.Unmarshal(data, &config)
	if err != nil {
		return config, err
	}
	return config, nil
}

func printConfiguration(config Configuration, logger *slog.Logger) {
	logger.Info(fmt.Sprintf("File in: %s", config.FileIn), "module", "config")
	logger.Info(fmt.Sprintf("File out: %s", config.FileOut), "module", "config")
	logger.Info(fmt.Sprintf("Noise file: %s", config.NoiseFile), "module", "config")
	logger.Info(fmt.Sprintf("Lightmap file: %s", config.LightmapFile), "module", "config")
	logger.Info(fmt.Sprintf("Termination threshold: %g", config.Threshold), "module", "config")
	logger.Info(fmt.Sprintf("Run number: %d", config.RunNumber), "module", "config")
	logger.Info(fmt.Sprintf("No DB: %t", config.NoDB), "module", "config")
	logger.Info(fmt.Sprintf("Host: %s", config.Host), "module", "config")
	logger.Info(fmt.Sprintf("DB name: %s", config.DBName), "module", "config")
	logger.Info(fmt.Sprintf("Skip: %d", config.Skip), "module", "config")
	logger.Info(fmt.Sprintf("Max events: %d", config.MaxEvents), "module", "config")
	logger.Info(fmt.Sprintf("Verbosity: %d", config.Verbosity), "module", "config")
	logger.Info(fmt.Sprintf("Write data: %t", config.WriteData), "module", "config")
}

// go-mdb
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-mdb.
//
// go-mdb is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-mdb is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-mdb; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mdb/cashless"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// settings is everything mdbprobe can read from flags, MDB_* environment
// variables and the optional config file, in that order of precedence
type settings struct {
	Port        string        `mapstructure:"port"`
	URL         string        `mapstructure:"url"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	SkipSSL     bool          `mapstructure:"skip_ssl_verify"`
	Log         logSettings   `mapstructure:"log"`
	VMC         vmcSettings   `mapstructure:"vmc"`
	Baud        int           `mapstructure:"baud"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	Timeout     time.Duration `mapstructure:"timeout"`
	ResetDelay  time.Duration `mapstructure:"reset_delay"`
}

type logSettings struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

type vmcSettings struct {
	Manufacturer    string `mapstructure:"manufacturer"`
	SerialNumber    string `mapstructure:"serial_number"`
	Model           string `mapstructure:"model"`
	SoftwareVersion string `mapstructure:"software_version"`
}

func (v vmcSettings) identity() cashless.Identity {
	return cashless.Identity{
		Manufacturer:    v.Manufacturer,
		SerialNumber:    v.SerialNumber,
		Model:           v.Model,
		SoftwareVersion: v.SoftwareVersion,
	}
}

// flagKeys maps global flag names to settings keys
var flagKeys = map[string]string{
	"port":            "port",
	"baud":            "baud",
	"url":             "url",
	"username":        "username",
	"skip-ssl-verify": "skip_ssl_verify",
	"read-timeout":    "read_timeout",
	"timeout":         "timeout",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "")
	v.SetDefault("url", "")
	v.SetDefault("username", "")
	v.SetDefault("password", "")
	v.SetDefault("skip_ssl_verify", false)
	v.SetDefault("baud", 115200)
	v.SetDefault("read_timeout", "50ms")
	v.SetDefault("timeout", "30s")
	v.SetDefault("reset_delay", "100ms")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.max_size", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age", 28)
	v.SetDefault("log.compress", false)

	id := cashless.DefaultVMCIdentity
	v.SetDefault("vmc.manufacturer", id.Manufacturer)
	v.SetDefault("vmc.serial_number", id.SerialNumber)
	v.SetDefault("vmc.model", id.Model)
	v.SetDefault("vmc.software_version", id.SoftwareVersion)
}

// loadSettings builds the effective settings. An explicit configFile must
// exist; without one mdbprobe.yaml is looked up in the working directory and
// ~/.config/mdbprobe.
func loadSettings(v *viper.Viper, flags *pflag.FlagSet, configFile string) (*settings, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("mdbprobe")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/mdbprobe")
	}

	v.SetEnvPrefix("MDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	s := &settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if s.Port != "" && s.URL != "" {
		return nil, errors.New("--port and --url are mutually exclusive")
	}
	return s, nil
}

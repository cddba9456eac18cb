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

// Command mdbprobe exercises MDB peripherals through a serial or WebSocket
// bridge: list ports, identify coin changers and cashless readers, watch
// their events, run a vend session or pay out change.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *settings
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "mdbprobe",
	Short: "MDB peripheral probe for coin changers and cashless readers",
	Long: `mdbprobe drives an MDB bus as the vending machine controller.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/mdb [--username user]

Without --port or --url the first USB serial port is used. The WebSocket
password is read from MDB_PASSWORD. Every flag can also be set through an
MDB_* environment variable or the config file.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		s, err := loadSettings(viper.New(), cmd.Flags(), configFile)
		if err != nil {
			return err
		}
		l, err := newLogger(s.Log, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		cfg, logger = s, l
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = logger.Sync()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default ./mdbprobe.yaml)")
	flags.StringP("port", "p", "", "Serial port of the MDB bridge")
	flags.IntP("baud", "b", 115200, "Baud rate (serial only)")
	flags.StringP("url", "u", "", "WebSocket URL of the MDB bridge (ws:// or wss://)")
	flags.String("username", "", "Username for HTTP Basic auth (WebSocket only)")
	flags.Bool("skip-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	flags.Duration("read-timeout", 50*time.Millisecond, "How long to wait for a peripheral reply")
	flags.Duration("timeout", 30*time.Second, "Overall command timeout, ignored in watch mode")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "console", "Log format (console or json)")
	flags.String("log-file", "", "Also write JSON logs to this file, rotated")
}

// commandContext is cancelled on SIGINT/SIGTERM and after --timeout unless
// the command runs until interrupted
func commandContext(watch bool) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if watch || cfg.Timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

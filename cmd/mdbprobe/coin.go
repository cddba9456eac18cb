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
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/coin"
	"github.com/ZaparooProject/go-mdb/polling"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	coinWatch    bool
	coinDiag     bool
	payoutAmount uint16
)

var coinCmd = &cobra.Command{
	Use:   "coin",
	Short: "Initialize the coin changer and print its coin table",
	Args:  cobra.NoArgs,
	RunE:  runCoin,
}

var payoutCmd = &cobra.Command{
	Use:   "payout",
	Short: "Pay out change from the coin changer",
	Long: `Pay out --amount, given in the smallest currency unit, and report what was
actually paid. Changers that run out of suitable coins pay less.`,
	Args: cobra.NoArgs,
	RunE: runPayout,
}

func init() {
	rootCmd.AddCommand(coinCmd, payoutCmd)
	coinCmd.Flags().BoolVarP(&coinWatch, "watch", "w", false, "Enable all coins and print events until interrupted")
	coinCmd.Flags().BoolVar(&coinDiag, "diag", false, "Print the L3 diagnostic status")
	payoutCmd.Flags().Uint16Var(&payoutAmount, "amount", 0, "Amount to pay out")
	_ = payoutCmd.MarkFlagRequired("amount")
}

func initAcceptor(ctx context.Context) (*mdb.Bus, *coin.Acceptor, func(), error) {
	bus, closeBus, err := openBus(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	acc, err := coin.Init(ctx, bus, nil)
	if err != nil {
		closeBus()
		return nil, nil, nil, fmt.Errorf("coin changer: %w", err)
	}
	return bus, acc, closeBus, nil
}

func runCoin(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(coinWatch)
	defer cancel()

	bus, acc, closeBus, err := initAcceptor(ctx)
	if err != nil {
		return err
	}
	defer closeBus()

	out := cmd.OutOrStdout()
	printCoinTable(out, acc)

	if coinDiag {
		diag, err := acc.L3DiagnosticStatus(ctx, bus)
		if err != nil {
			return fmt.Errorf("diagnostic status: %w", err)
		}
		fmt.Fprintf(out, "Diagnostics: %s\n", diag)
	}

	if !coinWatch {
		return nil
	}
	if err := acc.EnableCoins(ctx, bus, acc.CoinTypeMask()); err != nil {
		return fmt.Errorf("enable coins: %w", err)
	}
	loop, err := polling.NewLoop(bus, acc, nil, nil, polling.Callbacks{
		OnCoinEvent: func(_ context.Context, ev coin.Event) error {
			fmt.Fprintln(out, describeCoinEvent(ev, acc.DecimalPlaces))
			return nil
		},
		OnPollError: func(err error) {
			logger.Debug("coin poll failed", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Watching for coins, Ctrl+C to stop")
	return ignoreCancel(loop.Run(ctx))
}

func runPayout(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(false)
	defer cancel()

	bus, acc, closeBus, err := initAcceptor(ctx)
	if err != nil {
		return err
	}
	defer closeBus()

	paid, err := acc.Payout(ctx, bus, payoutAmount)
	if err != nil {
		return fmt.Errorf("payout: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Paid %s of %s\n",
		formatAmount(uint32(paid), acc.DecimalPlaces), formatAmount(uint32(payoutAmount), acc.DecimalPlaces))
	fmt.Fprintf(out, "Tubes now hold %s\n", formatAmount(acc.TubeValue(), acc.DecimalPlaces))
	if paid < payoutAmount {
		return fmt.Errorf("short payout by %s", formatAmount(uint32(payoutAmount-paid), acc.DecimalPlaces))
	}
	return nil
}

func printCoinTable(w io.Writer, acc *coin.Acceptor) {
	fmt.Fprintf(w, "Coin changer %s, country %02X%02X, scaling %d, decimals %d\n",
		acc.FeatureLevel, acc.CountryCode[0], acc.CountryCode[1], acc.ScalingFactor, acc.DecimalPlaces)
	if acc.L3 != nil {
		fmt.Fprintf(w, "  %s %s serial %s version %s\n",
			acc.L3.Manufacturer, acc.L3.Model, acc.L3.SerialNumber, acc.L3.SoftwareVersion)
		fmt.Fprintf(w, "  alt payout %t, extended diagnostic %t, controlled fill %t, FTL %t\n",
			acc.L3.AltPayout, acc.L3.ExtendedDiagnostic, acc.L3.ControlledFillPayout, acc.L3.FTL)
	}
	for i, ct := range acc.CoinTypes {
		if ct == nil {
			continue
		}
		tube := "cash box only"
		if ct.RouteableToTube {
			tube = strconv.Itoa(int(ct.NumCoins)) + " in tube"
			if ct.TubeFull {
				tube += " (full)"
			}
		}
		fmt.Fprintf(w, "  type %2d: %8s  %s\n", i, formatAmount(uint32(ct.UnscaledValue), acc.DecimalPlaces), tube)
	}
	fmt.Fprintf(w, "Tube value %s\n", formatAmount(acc.TubeValue(), acc.DecimalPlaces))
}

func describeCoinEvent(ev coin.Event, decimals uint8) string {
	switch e := ev.(type) {
	case coin.CoinInserted:
		return fmt.Sprintf("coin inserted: type %d, %s, routed to %s, %d left in tube",
			e.CoinType, formatAmount(uint32(e.UnscaledValue), decimals), e.Routing, e.CoinsRemaining)
	case coin.ManualDispense:
		return fmt.Sprintf("manual dispense: %d x type %d (%s), %d left in tube",
			e.Count, e.CoinType, formatAmount(uint32(e.UnscaledValue), decimals), e.CoinsRemaining)
	case coin.SlugCount:
		return fmt.Sprintf("slugs: %d", e.Count)
	case coin.Status:
		return "status: " + e.Code.String()
	default:
		return fmt.Sprintf("event: %#v", ev)
	}
}

// formatAmount renders an unscaled amount with the peripheral's decimal places
func formatAmount(unscaled uint32, decimals uint8) string {
	s := strconv.FormatUint(uint64(unscaled), 10)
	if decimals == 0 {
		return s
	}
	d := int(decimals)
	for len(s) <= d {
		s = "0" + s
	}
	return s[:len(s)-d] + "." + s[len(s)-d:]
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

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
	"strings"

	mdb "github.com/ZaparooProject/go-mdb"
	"github.com/ZaparooProject/go-mdb/cashless"
	"github.com/ZaparooProject/go-mdb/polling"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cashlessWatch bool
	vendAmount    uint16
	vendItem      string
	vendFail      bool
	vendNoSession bool
)

var cashlessCmd = &cobra.Command{
	Use:   "cashless",
	Short: "Initialize and enable the cashless reader and print its options",
	Args:  cobra.NoArgs,
	RunE:  runCashless,
}

var vendCmd = &cobra.Command{
	Use:   "vend",
	Short: "Run one vend session on the cashless reader",
	Long: `Wait for the customer to present a card, request --amount for --item and
complete the vend. --fail reports the item as not dispensed so the reader
refunds the customer.`,
	Args: cobra.NoArgs,
	RunE: runVend,
}

func init() {
	rootCmd.AddCommand(cashlessCmd, vendCmd)
	cashlessCmd.Flags().BoolVarP(&cashlessWatch, "watch", "w", false, "Print reader events until interrupted")
	vendCmd.Flags().Uint16Var(&vendAmount, "amount", 0, "Price in the smallest currency unit")
	vendCmd.Flags().StringVar(&vendItem, "item", "1", "Item number, decimal or 0x prefixed hex")
	vendCmd.Flags().BoolVar(&vendFail, "fail", false, "Report the vend as failed")
	vendCmd.Flags().BoolVar(&vendNoSession, "no-session", false, "Request the vend without waiting for a session")
	_ = vendCmd.MarkFlagRequired("amount")
}

func initReader(ctx context.Context) (*mdb.Bus, *cashless.Device, func(), error) {
	bus, closeBus, err := openBus(ctx, cfg, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	rc := cashless.DefaultConfig()
	rc.VMCIdentity = cfg.VMC.identity()
	dev, err := cashless.Init(ctx, bus, rc)
	if err == nil {
		err = dev.SetDeviceEnabled(ctx, bus, true)
	}
	if err != nil {
		closeBus()
		return nil, nil, nil, fmt.Errorf("cashless reader: %w", err)
	}
	return bus, dev, closeBus, nil
}

func runCashless(cmd *cobra.Command, _ []string) error {
	ctx, cancel := commandContext(cashlessWatch)
	defer cancel()

	bus, dev, closeBus, err := initReader(ctx)
	if err != nil {
		return err
	}
	defer closeBus()

	out := cmd.OutOrStdout()
	printReader(out, dev)
	if !cashlessWatch {
		return nil
	}

	loop, err := polling.NewLoop(bus, nil, dev, nil, polling.Callbacks{
		OnCashlessEvent: func(_ context.Context, ev cashless.Event) error {
			fmt.Fprintf(out, "%s [%s]\n", describeCashlessEvent(ev, dev.DecimalPlaces), dev.State())
			return nil
		},
		OnPollError: func(err error) {
			logger.Debug("cashless poll failed", zap.Error(err))
		},
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "Watching reader events, Ctrl+C to stop")
	return ignoreCancel(loop.Run(ctx))
}

func runVend(cmd *cobra.Command, _ []string) error {
	item, err := parseItem(vendItem)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(false)
	defer cancel()

	bus, dev, closeBus, err := initReader(ctx)
	if err != nil {
		return err
	}
	defer closeBus()
	out := cmd.OutOrStdout()

	if !vendNoSession {
		fmt.Fprintln(out, "Present a card")
		if err := waitForSession(ctx, bus, dev, out); err != nil {
			return err
		}
	}

	approved, err := dev.StartTransaction(ctx, bus, vendAmount, item)
	if err != nil {
		return fmt.Errorf("vend: %w", err)
	}
	fmt.Fprintf(out, "Vend approved for %s\n", formatAmount(uint32(approved), dev.DecimalPlaces))

	if vendFail {
		if err := dev.VendFailed(ctx, bus); err != nil {
			return fmt.Errorf("vend failure: %w", err)
		}
		fmt.Fprintln(out, "Customer refunded")
	} else if err := dev.VendSuccess(ctx, bus, item); err != nil {
		return fmt.Errorf("vend success: %w", err)
	}

	if err := dev.EndSession(ctx, bus); err != nil {
		return err
	}
	fmt.Fprintln(out, "Session complete")
	return nil
}

// waitForSession polls until the reader opens a session
func waitForSession(ctx context.Context, bus *mdb.Bus, dev *cashless.Device, out io.Writer) error {
	loop, err := polling.NewLoop(bus, nil, dev, nil, polling.Callbacks{
		OnCashlessEvent: func(_ context.Context, ev cashless.Event) error {
			switch ev.(type) {
			case cashless.BeginSessionBasic, cashless.BeginSessionAdvanced:
				fmt.Fprintln(out, describeCashlessEvent(ev, dev.DecimalPlaces))
				return polling.ErrStop
			}
			logger.Debug("event while waiting for session", zap.String("event", describeCashlessEvent(ev, dev.DecimalPlaces)))
			return nil
		},
	})
	if err != nil {
		return err
	}
	if err := loop.Run(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.New("no card presented before timeout")
		}
		return err
	}
	return nil
}

// parseItem reads an item number into its two byte wire form
func parseItem(s string) ([2]byte, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return [2]byte{}, fmt.Errorf("invalid item %q: %w", s, err)
	}
	return [2]byte{byte(n >> 8), byte(n)}, nil
}

func printReader(w io.Writer, dev *cashless.Device) {
	fmt.Fprintf(w, "Cashless reader %s, country %04X, scale %d, decimals %d, max response %ds\n",
		dev.FeatureLevel, dev.CountryCode, dev.ScaleFactor, dev.DecimalPlaces, dev.MaxResponseTime)
	fmt.Fprintf(w, "  %s %s serial %s version %s\n",
		dev.Identity.Manufacturer, dev.Identity.Model, dev.Identity.SerialNumber, dev.Identity.SoftwareVersion)
	fmt.Fprintf(w, "  options: %s\n", joinFlags(
		"restore funds", dev.Options.RestoreFunds,
		"multivend", dev.Options.Multivend,
		"display", dev.Options.HasDisplay,
		"cash sale", dev.Options.CashSale,
	))
	if dev.FeatureLevel == cashless.Level3 {
		fmt.Fprintf(w, "  L3 options: %s\n", joinFlags(
			"FTL", dev.L3.FTL,
			"32 bit money", dev.L3.Money32,
			"multi currency", dev.L3.MultiCurrency,
			"negative vend", dev.L3.NegativeVend,
			"data entry", dev.L3.DataEntry,
			"always idle", dev.L3.AlwaysIdle,
			"remote vend", dev.L3.RemoteVend,
			"basket", dev.L3.Basket,
			"coupon", dev.L3.Coupon,
			"ask begin session", dev.L3.AskBeginSession,
			"enhanced item info", dev.L3.EnhancedItemInfo,
		))
	}
	fmt.Fprintf(w, "State: %s\n", dev.State())
}

// joinFlags takes name, value pairs and lists the names that are set
func joinFlags(pairs ...any) string {
	var names []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if on, _ := pairs[i+1].(bool); on {
			names = append(names, pairs[i].(string))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func describeCashlessEvent(ev cashless.Event, decimals uint8) string {
	switch e := ev.(type) {
	case cashless.JustReset:
		return "reader reset"
	case cashless.ReaderConfigData:
		return fmt.Sprintf("reader config: %s, scale %d", e.Config.FeatureLevel, e.Config.ScaleFactor)
	case cashless.BeginSessionBasic:
		return "session started, funds " + formatAmount(uint32(e.Funds), decimals)
	case cashless.BeginSessionAdvanced:
		return fmt.Sprintf("session started, funds %s, media %d, payment type 0x%02X",
			formatAmount(uint32(e.Funds), decimals), e.MediaID, e.PaymentType)
	case cashless.SessionCancelRequest:
		return "session cancel requested"
	case cashless.VendApproved:
		return "vend approved " + formatAmount(uint32(e.Amount), decimals)
	case cashless.VendDenied:
		return "vend denied"
	case cashless.EndSession:
		return "session ended"
	case cashless.Cancelled:
		return "cancelled"
	case cashless.PeripheralID:
		return "peripheral id " + e.Identity.Manufacturer + " " + e.Identity.Model
	case cashless.Malfunction:
		return "malfunction: " + e.Code.String()
	case cashless.CmdOutOfSequence:
		return fmt.Sprintf("command out of sequence (0x%02X)", e.Status)
	case cashless.RevalueApproved:
		return "revalue approved"
	case cashless.RevalueDenied:
		return "revalue denied"
	case cashless.RevalueLimitAmount:
		return "revalue limit " + formatAmount(uint32(e.Amount), decimals)
	case cashless.UserFileData:
		return fmt.Sprintf("user file data, %d bytes", len(e.Payload))
	case cashless.TimeDateRequest:
		return "time/date requested"
	case cashless.DataEntryRequest:
		return fmt.Sprintf("data entry requested (0x%02X)", e.LengthFormat)
	default:
		return fmt.Sprintf("event: %#v", ev)
	}
}

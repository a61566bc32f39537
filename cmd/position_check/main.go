// Command position_check runs a single fetch cycle for one wallet and prints
// the derived dashboard state as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/position-dashboard/internal/config"
	"github.com/position-dashboard/internal/logging"
	"github.com/position-dashboard/internal/service"
	"github.com/position-dashboard/internal/types"
)

func main() {
	walletFlag := flag.String("wallet", "", "Wallet public key (base58)")
	timeoutFlag := flag.Duration("timeout", 30*time.Second, "Overall fetch timeout")
	flag.Parse()

	if *walletFlag == "" {
		fmt.Println("Usage: position_check -wallet <base58 public key>")
		os.Exit(2)
	}

	wallet, err := types.ParsePublicKey(*walletFlag)
	if err != nil {
		fmt.Printf("Invalid wallet: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Error loading configuration: %v\n", err)
		os.Exit(1)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	backends, err := service.OpenBackends(cfg, nil)
	if err != nil {
		fmt.Printf("Error opening backends: %v\n", err)
		os.Exit(1)
	}
	defer backends.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeoutFlag)
	defer cancel()

	snap := backends.DashboardService(cfg, nil).Fetch(ctx, wallet)
	snap.Log(logging.GetGlobalLogger())

	st := types.NewDisconnectedState("position-check")
	st.Wallet = wallet
	snap.ApplyTo(st)

	out, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		fmt.Printf("Error encoding state: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if st.Status == types.StatusErrored {
		os.Exit(1)
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"delta-hedge-bot/internal/bybit"
	"delta-hedge-bot/internal/config"
	"delta-hedge-bot/internal/exec"
	"delta-hedge-bot/internal/hedge"
	"delta-hedge-bot/internal/logging"

	"go.uber.org/zap"
)

const defaultVerifyEnvFile = ".env"

type report struct {
	Symbol string                  `json:"symbol"`
	Assets []bybit.AssetInfo       `json:"assets,omitempty"`
	Coin   string                  `json:"coin,omitempty"`
	Delta  string                  `json:"delta,omitempty"`
	Action string                  `json:"action,omitempty"`
	Order  *bybit.OrderInfo        `json:"order,omitempty"`
	Placed *bybit.OrderPlacingInfo `json:"placed,omitempty"`
	Polls  int                     `json:"polls,omitempty"`
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	orderID := flag.String("order-id", "", "print the status of this order and exit")
	execute := flag.Bool("execute", false, "place the decided hedge and wait for the fill")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	log := logging.New(cfg.Log)
	defer func() { _ = log.Sync() }()

	signer, err := bybit.NewSigner(cfg.Credentials.APIKey, cfg.Credentials.APISecret, cfg.REST.RecvWindow)
	if err != nil {
		fatal(err)
	}
	client, err := bybit.NewClient(bybit.Options{
		BaseURL: cfg.REST.BaseURL,
		Timeout: cfg.REST.Timeout,
	}, signer, log)
	if err != nil {
		fatal(err)
	}

	budget := cfg.REST.Timeout * 3
	if *execute {
		budget += cfg.Order.SettleDelay + time.Duration(cfg.Order.MaxPolls)*(cfg.Order.PollInterval+cfg.REST.Timeout)
	}
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	out := report{Symbol: cfg.Strategy.Symbol}
	if *orderID != "" {
		resp, err := client.QueryOrder(ctx, *orderID)
		if err != nil {
			fatal(err)
		}
		if len(resp.Result.DataList) == 0 {
			fatal(fmt.Errorf("order %s not found", *orderID))
		}
		out.Order = &resp.Result.DataList[0]
		printJSON(out)
		return
	}

	resp, err := client.QueryAssetInfo(ctx)
	if err != nil {
		fatal(err)
	}
	out.Assets = resp.Result.DataList
	asset, err := hedge.SelectAsset(resp.Result.DataList, cfg.Strategy.Coin)
	if err != nil {
		fatal(err)
	}
	action := hedge.Decide(asset.TotalDelta, cfg.Strategy.Places())
	out.Coin = asset.BaseCoin
	out.Delta = asset.TotalDelta.String()
	out.Action = action.String()

	if *execute && !action.IsNone() {
		executor := exec.New(client, exec.Config{
			SettleDelay:  cfg.Order.SettleDelay,
			PollInterval: cfg.Order.PollInterval,
			MaxPolls:     cfg.Order.MaxPolls,
		}, nil, log)
		fill, err := executor.Execute(ctx, cfg.Strategy.Symbol, action)
		if fill.Placed.OrderID != "" {
			out.Placed = &fill.Placed
			out.Polls = fill.Polls
		}
		if err != nil {
			printJSON(out)
			log.Error("hedge failed", zap.Error(err))
			os.Exit(1)
		}
		out.Order = &fill.Order
	}
	printJSON(out)
}

func printJSON(payload any) {
	pretty, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(pretty))
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

// Command train runs one training pass, or one forecast pass, and exits.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"FXForecast/internal/di"
	"FXForecast/internal/domain/models"
	"FXForecast/internal/usecase"
	"FXForecast/pkg/config"
	"FXForecast/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	symbols := flag.String("symbols", "", "comma separated symbols (default: config symbols)")
	from := flag.String("from", "", "history start, RFC3339 or YYYY-MM-DD")
	to := flag.String("to", "", "history end, RFC3339 or YYYY-MM-DD")
	forecast := flag.Bool("forecast", false, "forecast with stored models instead of training")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	if *symbols != "" {
		cfg.Symbols = strings.Split(*symbols, ",")
	}

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	code := run(app, cfg.Symbols, *from, *to, *forecast)
	_ = app.Close(context.Background())
	os.Exit(code)
}

func run(app *server.App, symbols []string, from, to string, forecast bool) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if forecast {
		out, err := app.Forecast(ctx)
		_ = enc.Encode(out)
		if err != nil {
			log.Printf("forecast: %v", err)
			return 1
		}
		return 0
	}

	code := 0
	for _, sym := range symbols {
		p, err := usecase.ParseTrainRequest(models.TrainRequest{Symbol: sym, From: from, To: to})
		if err != nil {
			log.Printf("invalid arguments: %v", err)
			return 2
		}
		summary, err := app.Train(ctx, p)
		if err != nil {
			log.Printf("train %s: %v", p.Symbol, err)
			code = 1
			continue
		}
		_ = enc.Encode(summary)
	}
	return code
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/abhishek7776/cryptowallet/internal/assistant"
	authenticatorpkg "github.com/abhishek7776/cryptowallet/internal/authenticator"
	"github.com/abhishek7776/cryptowallet/internal/chainpool"
	"github.com/abhishek7776/cryptowallet/internal/config"
	"github.com/abhishek7776/cryptowallet/internal/ledger"
	"github.com/abhishek7776/cryptowallet/internal/notifier"
	rpccodecs "github.com/abhishek7776/cryptowallet/internal/rpc_codecs"
	rpcservices "github.com/abhishek7776/cryptowallet/internal/rpc_services"
	dbstorage "github.com/abhishek7776/cryptowallet/internal/storage/db"
	"github.com/abhishek7776/cryptowallet/internal/txorch"
	"github.com/gorilla/rpc"
	"github.com/xo/dburl"
	"go.uber.org/zap"
)

func main() {
	if err := runService(); err != nil {
		log.Fatal(err)
	}
}

func runService() error {

	cfg, err := config.NewConfig(".env")
	if err != nil {
		return fmt.Errorf("creating config failed: %s", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer logger.Sync()

	parsedConnectionUrl, err := dburl.Parse(cfg.DbConnectionUrl)
	if err != nil {
		return err
	}

	storage, err := dbstorage.NewStorage(parsedConnectionUrl.Driver, parsedConnectionUrl.DSN)
	if err != nil {
		return err
	}

	if err := storage.ExecuteMigrations(context.Background()); err != nil {
		return err
	}

	pool := chainpool.NewPool(cfg.Networks, chainpool.DialEthclient, logger)

	orchestrator := txorch.NewOrchestrator(pool, logger,
		txorch.WithMaxAttempts(cfg.MaxRetryAttempts),
		txorch.WithReceiptTimeout(time.Duration(cfg.ReceiptTimeoutSec)*time.Second),
		txorch.WithGasBufferPct(cfg.GasBufferPct),
		txorch.WithFeeBumpPct(cfg.FeeBumpPct))

	recorder := ledger.NewRecorder(storage, logger)
	stats := ledger.NewStatsUpdater(storage, logger)

	auth := authenticatorpkg.NewAuthenticator(storage, cfg.JwtSecret)

	server := rpc.NewServer()

	codec := rpccodecs.NewCustomRequestsCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")

	walletService := rpcservices.NewWalletService(orchestrator, storage, auth,
		recorder, stats, notifier.NewLogNotifier(logger),
		assistant.NewClient(cfg.LlmEndpoint), logger)

	if err := server.RegisterService(walletService, "Wallet"); err != nil {
		return err
	}

	http.Handle("/", server)

	logger.Info("walletd listening", zap.Int("port", cfg.ApiPort))
	return http.ListenAndServe(fmt.Sprintf(":%d", cfg.ApiPort), nil)
}

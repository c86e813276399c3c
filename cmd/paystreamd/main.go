package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"path"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/helapay/paystream/src/api"
	"github.com/helapay/paystream/src/common"
	"github.com/helapay/paystream/src/eventbuffer"
	"github.com/helapay/paystream/src/factory"
	"github.com/helapay/paystream/src/ledger"
	"github.com/helapay/paystream/src/model"
	"github.com/helapay/paystream/src/payout"
	"github.com/helapay/paystream/src/postgres"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

func main() {
	pwd, _ := os.Getwd()
	fullPath := path.Join(pwd, "config.yaml")
	log.Printf("loading config @ `%s`", fullPath)
	rawCfg, err := os.ReadFile(fullPath)
	if err != nil {
		log.Printf("config file not found: %s", err)
		os.Exit(1)
	}
	cfg := api.ServerConfig{}
	if err := yaml.Unmarshal(rawCfg, &cfg); err != nil {
		log.Printf("failed parsing config file: %s", err)
		os.Exit(1)
	}

	flag.StringVar(&cfg.APIPort, "api", cfg.APIPort, "address to serve the dashboard API, default `:8080`")
	flag.StringVar(&cfg.PromPort, "prom", cfg.PromPort, "address to serve prom stats, default `:2112`")
	flag.StringVar(&cfg.HealthCheckPort, "hcp", cfg.HealthCheckPort, `(rarely used) if defined will expose a health check on /readyz, default ""`)
	flag.StringVar(&cfg.PostgresConfig, "pg", cfg.PostgresConfig, `config string for the postgres connection"`)
	flag.StringVar(&cfg.RedisAddress, "redis", cfg.RedisAddress, `address of the redis event buffer, disabled if empty"`)
	flag.StringVar(&cfg.TreasuryAddress, "treasury", cfg.TreasuryAddress, `treasury address recorded as the source of payout transfers"`)
	flag.StringVar(&cfg.DefaultOwner, "owner", cfg.DefaultOwner, `if set, deploys one ledger owned by this address at startup"`)

	flag.Parse()

	log.Println("----------------------------------")
	log.Printf("initializing paystreamd")
	log.Printf("\tapi:           %s", cfg.APIPort)
	log.Printf("\tprom:          %s", cfg.PromPort)
	log.Printf("\thealth check:  %s", cfg.HealthCheckPort)
	log.Printf("\tpostgres:      %s", cfg.PostgresConfig)
	log.Printf("\tredis:  		 %s", cfg.RedisAddress)
	log.Printf("\ttreasury:  	 %s", cfg.TreasuryAddress)
	log.Printf("\tmock payer:  	 %t", cfg.MockPayer)
	log.Println("----------------------------------")

	logger := common.ConfigureZap(zap.InfoLevel)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var payer ledger.Payer
	opts := []ledger.Option{}
	serverOpts := []api.ServerOption{}
	if cfg.MockPayer {
		payer = ledger.NewMockPayer()
	} else {
		if cfg.PostgresConfig == "" {
			postgres.ConfigureDockerConnection()
		} else {
			postgres.ConfigurePostgres(cfg.PostgresConfig)
		}
		if err := postgres.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed ensuring postgres schema", zap.Error(err))
		}
		payer = payout.NewPostgresPayer(model.Address(cfg.TreasuryAddress))
		opts = append(opts, ledger.WithEventSink(postgres.EventRecorder{}))
		serverOpts = append(serverOpts, api.WithHistory(postgres.History{}))
	}

	if cfg.RedisAddress != "" {
		rd := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		if err := rd.Ping(ctx).Err(); err != nil {
			logger.Fatal("failed to connect to redis", zap.Error(err))
		}
		buffer := eventbuffer.NewBuffer(rd)
		opts = append(opts, ledger.WithEventSink(buffer))
		serverOpts = append(serverOpts, api.WithEventCache(buffer))
		go buffer.StartPruner(ctx, 5*time.Minute, 24*time.Hour, logger)
	}

	f := factory.New(payer, logger, opts...)
	if cfg.DefaultOwner != "" {
		l, err := f.Deploy(model.Address(cfg.DefaultOwner))
		if err != nil {
			logger.Fatal("failed deploying default ledger", zap.Error(err))
		}
		logger.Info("default ledger deployed", zap.String("org", l.Id()),
			zap.String("owner", cfg.DefaultOwner))
	}

	if cfg.HealthCheckPort != "" {
		go beginReadyzHandler(cfg)
	}
	api.StartPromServer(cfg.PromPort, logger)

	server := api.NewServer(f, logger, serverOpts...)
	if err := server.Start(cfg.APIPort); err != nil {
		logger.Fatal("api server failed", zap.Error(err))
	}
}

func beginReadyzHandler(cfg api.ServerConfig) {
	http.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if cfg.MockPayer {
			w.WriteHeader(http.StatusOK)
			return
		}
		pg, err := postgres.GetConnection(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		defer pg.Close(r.Context())
		if err := pg.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(errors.Wrap(err, "failed pinging postgres").Error()))
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	go http.ListenAndServe(cfg.HealthCheckPort, nil)
}

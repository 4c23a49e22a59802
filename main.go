package main

import (
	"context"
	"flag"

	"redsys/config"
	"redsys/internal"
	"redsys/services"
)

func main() {

	logger := internal.NewLogger("main", false, nil)

	configPath := flag.String("conf", "config.yml", "path to config file")
	flag.Parse()

	logger.Info("using config file: " + *configPath)
	conf, err := config.GetConfig(*configPath)
	if err != nil {
		logger.Error("boot", err)
		return
	}

	var database services.Database
	var origins services.OriginResolver
	if conf.Mongo.Enabled {
		mongo, err := internal.NewMongoClient(conf)
		if err != nil {
			logger.Error("mongo client", err)
			return
		}
		if err = mongo.EnsureIndexes(context.Background()); err != nil {
			logger.Error("mongo indexes", err)
			return
		}
		logger.Info("mongo client initialized")
		database = mongo
		origins = mongo
	} else {
		logger.Warn("mongo disabled, transactions will not be persisted")
	}

	payments := internal.NewPayments()
	payments.SetLogger(internal.NewLogger("payments", conf.IsDebug, database))
	payments.SetDatabase(database)
	payments.SetOriginResolver(origins)

	server := internal.NewServer(conf)
	server.SetLogger(internal.NewLogger("server", conf.IsDebug, database))
	server.SetPaymentsService(payments)

	err = server.Start()
	if err != nil {
		logger.Error("server start", err)
		return
	}

}

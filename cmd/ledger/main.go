package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/talx-hub/credit-ledger/internal/app"
	"github.com/talx-hub/credit-ledger/internal/utils/logger"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.ParseLevel(os.Getenv("LOG_LEVEL")))
	app.RunServer(log)
}

package main

import (
	"context"
	"os"

	"github.com/amaumene/vodarr/internal/app"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.Info("starting vodarr")

	application, err := app.New()
	if err != nil {
		log.WithError(err).Fatal("failed to initialize application")
	}

	if err := application.Run(context.Background()); err != nil {
		log.WithError(err).Fatal("application exited with error")
	}
}

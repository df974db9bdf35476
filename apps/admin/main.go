package main

import (
	"log"
	"os"

	"github.com/uniteams/uniteams/core"
	"github.com/uniteams/uniteams/core/profile"
	"github.com/uniteams/uniteams/services/hostedauth"
	"github.com/uniteams/uniteams/storage/postgres"
	"github.com/uniteams/uniteams/storage/rest"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	applog := core.NewStdLogger(logger)

	authSvc := hostedauth.NewClient(&hostedauth.Options{
		BaseURL: core.Conf.Hosted.BaseURL,
		AnonKey: core.Conf.Hosted.AnonKey,
		Logger:  applog,
	})

	// profiles go through the hosted data API with the service role; a local
	// database takes over when one is configured
	var profiles profile.Repository
	cli := commandLine{authSvc: authSvc}
	if core.Conf.DatabaseURL != "" {
		db, err := postgres.Open(core.Conf.DatabaseURL)
		errAndDie(err)
		defer db.Close()
		cli.db = db.DB
		profiles = postgres.NewProfileRepository(db)
	} else {
		profiles = rest.NewProfileRepository(&rest.Options{
			BaseURL:    core.Conf.Hosted.BaseURL,
			AnonKey:    core.Conf.Hosted.AnonKey,
			ServiceKey: core.Conf.Hosted.ServiceKey,
			Logger:     applog,
		})
	}
	cli.profiles = profiles

	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}

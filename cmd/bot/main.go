// Package main: wallet tracker bot service.
//
// The bot stores the users and their addresses in Postgres, publishes track commands for the external watcher and
// relays its transaction events to the subscribed chats. The watcher must use the same broker and channels.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tarancss/soltracker/bot"
	"github.com/tarancss/soltracker/lib/config"
	"github.com/tarancss/soltracker/lib/logger"
)

func main() {
	// get command line flags
	confPath := flag.String("c", "", "flag to get configuration from json file")
	flag.Parse()

	// extract configuration
	conf, err := config.ExtractConfiguration(*confPath)
	if err != nil {
		panic(err)
	}

	log := logger.New(conf.LogLevel, nil)

	if err = conf.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	log.Info().Str("mbtype", conf.MbType).Str("port", conf.Port).Bool("dev", conf.Dev).Msg("configuration loaded")

	b := bot.New(conf, bot.WithLogger(log))

	// capture CTRL+C or docker's SIGTERM for gracious exit, the signal only ends the wait below
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err = b.Start(context.Background()); err != nil {
		b.Stop()
		log.Fatal().Err(err).Msg("bot not started")
	}

	select {
	case <-ctx.Done():
		log.Info().Msg("program killed")
	case <-b.Done():
		log.Warn().Msg("background task ended")
	}

	b.Stop()
}

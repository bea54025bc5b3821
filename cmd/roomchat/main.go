package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/rlaneuville/roomchat/auth"
	"github.com/rlaneuville/roomchat/chat"
	"github.com/rlaneuville/roomchat/config"
	"github.com/rlaneuville/roomchat/globals"
	"github.com/rlaneuville/roomchat/persistence"
	"github.com/rlaneuville/roomchat/ws"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	store, err := persistence.NewStore(globalConfig)
	if err != nil {
		panic(err)
	}
	defer store.Close()

	identity, err := auth.NewIdentity(globalConfig)
	if err != nil {
		panic(err)
	}
	if identity == nil {
		globals.AppLogger.Warn("no identity backend configured, guest connections only")
	}

	server := ws.NewServer()
	service, err := chat.NewService(globalConfig, store, identity, server)
	if err != nil {
		panic(err)
	}
	server.SetService(service)

	cronRunner := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err = cronRunner.AddFunc(globalConfig.ChatConfig.CheckpointSpec, service.Checkpoint)
	if err != nil {
		panic(err)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	httpServer := &http.Server{Addr: *addr, Handler: server.Routes()}
	errChan := make(chan error, 1)
	go func() {
		if *sslCert != "" && *sslKey != "" {
			errChan <- httpServer.ListenAndServeTLS(*sslCert, *sslKey)
		} else {
			errChan <- httpServer.ListenAndServe()
		}
	}()
	globals.AppLogger.Info("listening", "addr", *addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errChan:
		globals.AppLogger.Error("stopped listening", "error", err)

	case sig := <-sigChan:
		globals.AppLogger.Info("shutting down", "signal", sig)
	}

	// flush every active room before exiting, unflushed messages would be lost
	service.Shutdown()
	httpServer.Close()
}

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"NowListeningBot/internal/auth"
	"NowListeningBot/internal/bot"
	"NowListeningBot/internal/db"
	"NowListeningBot/internal/jobs"
	"NowListeningBot/internal/playback"
	"NowListeningBot/pkg/spotifyapi"
)

func main() {
	defer func() {
		if err := recover(); err != nil {
			log.Fatalf("error recovered: %v", err)
		}
	}()

	configPath := flag.String("config", "./config.toml", "Config file path (default: ./config.toml)")
	flag.Parse()
	config := LoadConfig(*configPath)

	store, err := db.New(config.Database)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	api := spotifyapi.New(config.SpotifyAPI)
	authManager := auth.NewManager(store, api)
	poller := playback.NewPoller(store, api)

	b, err := bot.New(config.TelegramBot, store, authManager, poller)
	if err != nil {
		log.Fatalf("failed to initialize bot: %v", err)
	}
	poller.OnChange(b.UpdateEnabledMessages)

	scheduler := jobs.New(config.Jobs, authManager, poller, b)
	scheduler.Start()

	s := &server{config: &config, bot: b, auth: authManager, store: store}
	r := http.NewServeMux()
	r.HandleFunc(config.TelegramBotWebhookPath, s.HandleBotUpdate) // Telegram bot update
	r.HandleFunc(config.OAuthRedirectPath, s.HandleOAuthRedirect)  // Spotify OAuth redirect

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      middleware(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sc
		log.Info("received SIGTERM, exiting")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Errorf("failed to shutdown HTTP server: %v", err)
		}
		scheduler.Stop()
		if err := store.Close(); err != nil {
			log.Errorf("failed to close database: %v", err)
		}
		os.Exit(0)
	}()

	if config.TLS.CertificatePath != "" && config.TLS.PrivateKeyPath != "" { // with HTTPS
		cert, e := tls.LoadX509KeyPair(config.TLS.CertificatePath, config.TLS.PrivateKeyPath)
		if e != nil {
			log.Errorf("failed to load TLS certificate: %v", e)
			return
		}

		srv.TLSConfig = &tls.Config{
			ServerName:   config.TLS.ServerName,
			Certificates: []tls.Certificate{cert},
		}
		log.Infof("started listening on %s (HTTPS)", srv.Addr)
		err = srv.ListenAndServeTLS("", "")
	} else { // without HTTPS
		log.Infof("started listening on %s", srv.Addr)
		err = srv.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		log.Errorf("error returned by HTTP server: %v", err)
	}
}

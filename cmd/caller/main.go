package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/callbroker/internal/adapters/notify"
	"github.com/dkeye/callbroker/internal/adapters/rtc"
	"github.com/dkeye/callbroker/internal/adapters/transport"
	"github.com/dkeye/callbroker/internal/app/orch"
	"github.com/dkeye/callbroker/internal/config"
	"github.com/dkeye/callbroker/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	engine, err := rtc.NewEngine(cfg.ICEServers)
	if err != nil {
		log.Fatal().Err(err).Msg("media engine")
	}

	tr := transport.New(transport.Config{
		WSURL:             cfg.RelayWSURL,
		HTTPURL:           cfg.RelayHTTPURL,
		ReadLimit:         cfg.ReadLimit,
		PingPeriod:        cfg.PingPeriod,
		ReconnectInterval: cfg.ReconnectInterval,
	})
	events := notify.NewStream(notify.DefaultBuffer)

	coord := orch.New(orch.Deps{
		Engine:     engine,
		Signaler:   tr,
		Notifier:   events,
		Prefs:      cfg.Media.MediaPreferences,
		Devices:    cfg.Media.DeviceSelection,
		FlushDelay: cfg.CandidateFlushDelay,
		BatchSize:  cfg.CandidateBatchSize,
	})

	tr.OnMessage(func(from domain.PeerID, msg domain.Message) {
		if err := coord.OnRemoteMessage(ctx, from, msg); err != nil {
			log.Warn().Err(err).Str("from", string(from)).Str("type", string(msg.Type)).Msg("inbound message rejected")
		}
	})

	if err := tr.Register(domain.RoomID(cfg.RoomID), domain.ClientID(cfg.ClientID)); err != nil {
		log.Fatal().Err(err).Msg("register")
	}
	openCtx, openCancel := context.WithTimeout(ctx, 10*time.Second)
	if err := tr.Open(openCtx); err != nil {
		log.Warn().Err(err).Msg("relay socket unavailable, using HTTP fallback")
	}
	openCancel()

	fmt.Printf("client %s in room %s. Type help for commands.\n", cfg.ClientID, cfg.RoomID)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for e := range events.Events() {
			fmt.Println(notify.Format(e))
		}
		return nil
	})
	g.Go(func() error {
		defer shutdown(coord, tr, events)
		lines := readLines()
		for {
			select {
			case <-gctx.Done():
				return nil
			case line, ok := <-lines:
				if !ok {
					return nil
				}
				if quit := runCommand(gctx, coord, line); quit {
					return nil
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("caller stopped with error")
		os.Exit(1)
	}
}

func readLines() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			out <- sc.Text()
		}
	}()
	return out
}

func shutdown(coord *orch.Coordinator, tr *transport.Transport, events *notify.Stream) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := coord.Close(ctx); err != nil {
		log.Warn().Err(err).Msg("coordinator close")
	}
	_ = tr.Close()
	events.Close()
	if n := events.Dropped(); n > 0 {
		log.Warn().Uint64("dropped", n).Msg("events dropped")
	}
}

// Command banchod is the Bancho server process: it wires the session,
// channel, match, spectator and chat components together behind the HTTP
// transport and runs housekeeping until interrupted.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"

	"github.com/stlalpha/bancho3/internal/banchohttp"
	"github.com/stlalpha/bancho3/internal/channel"
	"github.com/stlalpha/bancho3/internal/chat"
	"github.com/stlalpha/bancho3/internal/command"
	"github.com/stlalpha/bancho3/internal/config"
	"github.com/stlalpha/bancho3/internal/handlers"
	"github.com/stlalpha/bancho3/internal/housekeeping"
	"github.com/stlalpha/bancho3/internal/logging"
	"github.com/stlalpha/bancho3/internal/login"
	"github.com/stlalpha/bancho3/internal/match"
	"github.com/stlalpha/bancho3/internal/memstore"
	"github.com/stlalpha/bancho3/internal/ports"
	"github.com/stlalpha/bancho3/internal/session"
	"github.com/stlalpha/bancho3/internal/spectator"
)

func main() {
	configPath := flag.String("config", ".", "directory holding config.json and templates.yaml")
	jsonLogs := flag.String("log-format", "text", "log output format: text or json")
	flag.Parse()

	cfg, err := config.LoadServerConfig(*configPath)
	if err != nil {
		log.Fatalf("banchod: load config: %v", err)
	}
	templates, err := config.LoadTemplates(*configPath)
	if err != nil {
		log.Fatalf("banchod: load templates: %v", err)
	}

	logger := logging.New(*jsonLogs == "json", cfg.Debug)
	logging.DebugEnabled = cfg.Debug
	slog.SetDefault(logger)

	store := memstore.New()
	store.SeedUser(memstore.BotUser())
	store.SeedChannels(memstore.DefaultChannels())

	sessions := session.NewRegistry(cfg.BcryptCacheSize)
	channels := channel.NewRegistry()
	if records, err := store.Channels(context.Background()); err == nil {
		channels.LoadStatic(records)
	} else {
		logger.Error("banchod: failed to load channels, falling back to built-in defaults", "err", err)
		channels.LoadStatic(memstore.DefaultChannels())
	}
	matches := match.NewTable()
	spectators := spectator.NewManager(channels)
	lobby, _ := channels.Get("#lobby")

	botSnapshot := housekeeping.NewBotSnapshot(memstore.BuildBotSnapshot)
	scheduler := housekeeping.NewScheduler(sessions, channels, store, store, botSnapshot, logger)

	commands := command.NewRegistry("general", logger)
	commands.MatchLookup = func(sender *session.BanchoSession) command.MatchContext {
		m, ok := matches.Get(sender.MatchID)
		if !ok {
			return nil
		}
		return m
	}
	command.RegisterGeneral(commands, command.GeneralDeps{
		Sessions: sessions,
		Channels: channels,
		Store:    store,
		Log:      logger,
		Prefix:   cfg.CommandPrefix,
	})
	command.RegisterMultiplayer(commands, command.MultiplayerDeps{
		Lobby: lobby,
		Store: store,
		Log:   logger,
	})

	chatRouter := &chat.Router{
		Channels:      channels,
		Sessions:      sessions,
		Store:         store,
		CommandPrefix: cfg.CommandPrefix,
		Dispatch: func(sender *session.BanchoSession, target, text string) (string, bool, bool) {
			resp, handled := commands.Dispatch(sender, target, text)
			return resp.Text, resp.Hidden, handled
		},
	}

	deps := handlers.Deps{
		Sessions:   sessions,
		Channels:   channels,
		Matches:    matches,
		Spectators: spectators,
		Store:      store,
		Chat:       chatRouter,
		Log:        logger,
		Lobby:      lobby,
	}

	loginDeps := login.Dependencies{
		Sessions:    sessions,
		Channels:    channels,
		Store:       store,
		Geolocator:  noopGeolocator{},
		Versions:    nil,
		Clients:     nil,
		Config:      cfg,
		Templates:   templates,
		Log:         logger,
		FirstUserID: cfg.BotUserID + 1,
		BotSnapshot: botSnapshot.Get,
	}

	server := banchohttp.New(sessions, loginDeps, handlers.Build(deps), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		logger.Info("banchod: shutting down")
		cancel()
	}()

	go scheduler.Start(ctx)

	logger.Info("banchod: listening", "addr", cfg.ListenAddr, "domain", cfg.Domain)
	if err := server.Run(ctx, cfg.ListenAddr); err != nil {
		logger.Error("banchod: server stopped", "err", err)
		os.Exit(1)
	}

	for _, m := range matches.All() {
		m.CancelStartTimer()
	}
}

// noopGeolocator always reports an unknown location. No geolocation
// database or ecosystem client appears anywhere in this deployment's
// dependency set, and the login pipeline treats a resolved-but-empty
// country as "leave the account's existing country alone" rather than a
// failure, so this is a safe default rather than a stub that needs
// replacing before launch.
type noopGeolocator struct{}

func (noopGeolocator) Locate(ctx context.Context, ip string) (ports.Geolocator, error) {
	return ports.Geolocator{}, nil
}

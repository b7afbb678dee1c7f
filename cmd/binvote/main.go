// @title         binvote API
// @version       0.1.0
// @description   Read only endpoints for BIN lookups, live votes and service meta

package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"binvote/internal/adapters/binlist"
	"binvote/internal/adapters/fetch"
	"binvote/internal/adapters/onebot"
	"binvote/internal/adapters/telegram"
	"binvote/internal/adapters/tracker/github"
	"binvote/internal/modkit"
	"binvote/internal/modkit/module"
	"binvote/internal/modkit/repokit"
	"binvote/internal/platform/backoff"
	"binvote/internal/platform/config"
	"binvote/internal/platform/config/raw"
	perr "binvote/internal/platform/errors"
	"binvote/internal/platform/logger"
	phttp "binvote/internal/platform/net/http"
	"binvote/internal/platform/store"

	"binvote/internal/services/api"
	metamod "binvote/internal/services/api/meta/module"
	binsmod "binvote/internal/services/bins/module"
	ingestmod "binvote/internal/services/ingest/module"
	pubmod "binvote/internal/services/publisher/module"
	voting "binvote/internal/services/voting/domain"
	votingmod "binvote/internal/services/voting/module"
)

func main() {
	_ = raw.LoadDotEnv(".env", ".env.local")
	logger.Init(logger.FromEnv())
	l := logger.Get()

	root := config.New()
	bv := root.Prefix("BINVOTE_")
	apiCfg := root.Prefix("CORE_API_")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, store.ConfigFromEnv(root), store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()
	if st.PG == nil {
		l.Fatal().Msg("SERVICE_PGSQL_DBURL is required")
	}

	deps := modkit.Deps{Cfg: root, PG: st.PG, Log: *l}
	if err := votingmod.Migrate(ctx, deps); err != nil {
		l.Fatal().Err(err).Msg("voting schema migration failed")
	}

	retry := backoff.Default
	retry.Attempts = bv.MayInt("RETRY_ATTEMPTS", backoff.Default.Attempts)

	gh := github.NewClient(github.OptionsFromConfig(bv.Prefix("GITHUB_"), retry.Attempts))
	images := fetch.New(fetch.OptionsFromConfig(bv, retry))
	lookup := binlist.New(binlist.OptionsFromConfig(bv, retry))

	// adapters stay nil interfaces when disabled so the engine sees them as absent
	var (
		ob        *onebot.Client
		tg        *telegram.Bot
		chat      voting.ChatPort
		bot       voting.PollBotPort
		groupIDs  []int64
		pollChats []int64
		sinks     = map[string]voting.Notifier{}
	)
	if o := onebot.OptionsFromConfig(bv.Prefix("ONEBOT_"), retry); o.Enabled() {
		ob = onebot.New(o)
		chat, groupIDs = ob, ob.GroupIDs()
		sinks[pubmod.SinkOneBot] = ob
	} else {
		l.Info().Msg("onebot disabled, group voting off")
	}
	if o := telegram.OptionsFromConfig(bv.Prefix("TELEGRAM_"), retry); o.Enabled() {
		tg, err = telegram.New(o)
		if err != nil {
			l.Error().Err(err).Msg("telegram unavailable, poll and token voting off")
		} else {
			bot, pollChats = tg, tg.ChatIDs()
			sinks[pubmod.SinkTelegram] = tg
		}
	} else {
		l.Info().Msg("telegram disabled, poll and token voting off")
	}

	vstore := votingmod.NewStore(deps)

	pub := pubmod.New(deps, pubmod.Wiring{
		Store:   vstore,
		Tracker: gh,
		Meta:    lookup,
		Images:  images,
		Sinks:   sinks,
	})
	vote := votingmod.New(deps, votingmod.Wiring{
		Store:     vstore,
		Chat:      chat,
		Bot:       bot,
		Chats:     groupIDs,
		PollChats: pollChats,
		Publisher: pub.Publisher(),
		Images:    images,
	})
	vports := module.MustPortsOf[votingmod.Ports](vote)

	// the first pass waits for the OneBot socket so open issues are not prompted into a dead channel
	var ready func() bool
	if ob != nil {
		ready = ob.Connected
	}
	ingest := ingestmod.New(deps, ingestmod.Wiring{
		Tracker:    gh,
		Seen:       vstore,
		Dispatcher: vports.Dispatcher,
		Ready:      ready,
	})
	bins := binsmod.New(deps, binsmod.Wiring{
		Meta:   lookup,
		Photos: vstore,
		Images: images,
		Owner:  gh.Owner(),
		Repo:   gh.Repo(),
	})

	checks := map[string]metamod.Check{"postgres": repokit.Probe(st, 2*time.Second), "onebot": nil}
	if ob != nil {
		checks["onebot"] = func(context.Context) error {
			if !ob.Connected() {
				return perr.Unavailablef("onebot websocket not connected")
			}
			return nil
		}
	}
	metaMod := metamod.New(root.MayString("SERVICE_NAME", "binvote"), checks)

	srv := phttp.NewServer(apiCfg)
	api.Mount(srv.Router(), api.Options{
		Modules:       []module.Module{metaMod, bins, vote, ingest, pub},
		CORSOrigins:   apiCfg.MayCSV("CORS_ORIGINS", []string{"*"}),
		EnableSwagger: apiCfg.MayBool("SWAGGER", true),
	})

	workers := map[string]func(context.Context) error{
		"http":    srv.Run,
		"ingest":  ingest.Run,
		"sweeper": vote.Run,
	}
	if ob != nil {
		query := bins.Query()
		workers["onebot"] = func(ctx context.Context) error {
			return ob.Run(ctx, onebotHandler(ob, query, vports.Events))
		}
	}
	if tg != nil {
		workers["telegram"] = func(ctx context.Context) error {
			return tg.Run(ctx, vports.Events.Handle)
		}
	}

	var wg sync.WaitGroup
	for name, run := range workers {
		wg.Go(func() {
			wlog := l.With().Str("worker", name).Logger()
			wlog.Info().Msg("worker started")
			if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				wlog.Error().Err(err).Msg("worker stopped with error")
				stop()
				return
			}
			wlog.Info().Msg("worker stopped")
		})
	}
	<-ctx.Done()
	l.Info().Msg("shutting down")

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		l.Warn().Msg("workers did not stop within 15s")
	}
}

// replier is the part of the BIN query service the chat handler needs
type replier interface {
	Reply(ctx context.Context, bin string) voting.Message
}

// onebotHandler answers "bin <digits>" queries and forwards replies to the engine
func onebotHandler(ob *onebot.Client, q replier, events voting.EventHandler) onebot.Handler {
	log := logger.Named("onebot")
	return func(ctx context.Context, in onebot.Inbound) {
		if bin, ok := in.BINQuery(); ok {
			if err := ob.Reply(ctx, in, q.Reply(ctx, bin)); err != nil {
				log.Warn().Err(err).Str("bin", bin).Msg("bin query reply failed")
			}
			return
		}
		ev, ok := in.ChatReply()
		if !ok {
			return
		}
		if err := events.Handle(ctx, ev); err != nil {
			if perr.IsUnknownKey(err) {
				log.Debug().Err(err).Msg("reply to unknown prompt")
				return
			}
			log.Warn().Err(err).Msg("chat reply handling failed")
		}
	}
}

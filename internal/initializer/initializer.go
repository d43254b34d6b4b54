package initializer

import (
	"context"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/milkywaybrain/cryptofeed/internal/board"
	"github.com/milkywaybrain/cryptofeed/internal/config"
	"github.com/milkywaybrain/cryptofeed/internal/feed"
	"github.com/milkywaybrain/cryptofeed/internal/server"
	"github.com/milkywaybrain/cryptofeed/internal/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
	"golang.org/x/sync/errgroup"
)

// Start will initialize various required systems and then execute the app.
// It returns once mainCtx is done or a component fails.
func Start(mainCtx context.Context, cfg *config.Config) error {
	return start(mainCtx, cfg, os.Stdout)
}

func start(mainCtx context.Context, cfg *config.Config, terOut io.Writer) error {
	logFile, err := setupLogger(&cfg.Log)
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	// Establish connections to the storage systems used by any stream.
	sinks, err := initSinks(cfg, terOut)
	if err != nil {
		log.Error().Stack().Err(errors.WithStack(err)).Msg("")
		return err
	}
	defer sinks.Close()

	dispatcher := storage.NewDispatcher(cfg.Streams, sinks, cfg.Engine.EventBuffer)
	brd, err := board.New(&cfg.Engine, dispatcher)
	if err != nil {
		return err
	}
	kinds := make(map[string]feed.Kind, len(cfg.Streams))
	for _, s := range cfg.Streams {
		kinds[s.Name] = feed.Kind(s.Kind)
	}
	mgr := feed.NewManager(&cfg.Engine, &cfg.Connection.WS, kinds)

	// Any failing component stops the others and exits the app.
	runCtx, cancel := context.WithCancel(mainCtx)
	defer cancel()
	appErrGroup, appCtx := errgroup.WithContext(runCtx)

	appErrGroup.Go(func() error {
		return brd.Run(appCtx, mgr.Events())
	})
	appErrGroup.Go(func() error {
		return dispatcher.Run(appCtx)
	})
	if cfg.Server.Addr != "" {
		srv := server.New(&cfg.Server, brd, mgr)
		appErrGroup.Go(func() error {
			return srv.Run(appCtx)
		})
	}
	appErrGroup.Go(func() error {
		<-appCtx.Done()
		// Closing the manager closes the event channel, which ends the board.
		mgr.Close()
		return nil
	})

	for _, s := range cfg.Streams {
		brd.Watch(s.Name)
		if err = mgr.Connect(appCtx, s.Name, s.URL); err != nil {
			if errors.Is(err, feed.ErrClosed) {
				// Shutdown began before every stream was subscribed.
				break
			}
			log.Error().Stack().Err(errors.WithStack(err)).Str("stream", s.Name).Msg("")
			cancel()
			_ = appErrGroup.Wait()
			return err
		}
		log.Info().Str("stream", s.Name).Str("url", s.URL).Msg("stream subscribed")
	}

	err = appErrGroup.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("exiting the app")
		return err
	}
	log.Info().Msg("app stopped")
	return nil
}

// setupLogger configures the global logger.
// If the path given in the config for logging ends with .log then create a log file with the same name and
// write log messages to it. An empty path logs to the console. Otherwise, create a new log file with a
// timestamp attached to it's name in the given path.
func setupLogger(cfg *config.Log) (*os.File, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	switch cfg.Level {
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var (
		logFile *os.File
		err     error
	)
	switch {
	case cfg.FilePath == "":
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
		log.Info().Msg("logger setup is done")
		return nil, nil
	case strings.HasSuffix(cfg.FilePath, ".log"):
		logFile, err = os.OpenFile(cfg.FilePath, os.O_RDWR|os.O_APPEND|os.O_CREATE, 0666)
		if err != nil {
			return nil, errors.Errorf("not able to open or create log file: %v", cfg.FilePath)
		}
	default:
		name := cfg.FilePath + "_" + strconv.Itoa(int(time.Now().Unix())) + ".log"
		logFile, err = os.Create(name)
		if err != nil {
			return nil, errors.Errorf("not able to create log file: %v", name)
		}
	}

	log.Logger = zerolog.New(logFile).With().Timestamp().Logger()
	log.Info().Msg("logger setup is done")
	return logFile, nil
}

// initSinks connects every storage named by at least one stream.
func initSinks(cfg *config.Config, terOut io.Writer) (storage.Sinks, error) {
	var (
		sinks storage.Sinks
		err   error
	)
	for _, s := range cfg.Streams {
		for _, str := range s.Storages {
			switch str {
			case storage.TerminalName:
				if sinks.Terminal == nil {
					sinks.Terminal = storage.NewTerminal(terOut, cfg.Connection.Terminal.BookDepth)
					log.Info().Msg("terminal connected")
				}
			case storage.MySQLName:
				if sinks.MySQL == nil {
					sinks.MySQL, err = storage.NewMySQL(&cfg.Connection.MySQL)
					if err != nil {
						sinks.Close()
						return storage.Sinks{}, errors.Wrap(err, "mysql connection")
					}
					log.Info().Msg("mysql connected")
				}
			case storage.ElasticSearchName:
				if sinks.ElasticSearch == nil {
					sinks.ElasticSearch, err = storage.NewElasticSearch(&cfg.Connection.ES)
					if err != nil {
						sinks.Close()
						return storage.Sinks{}, errors.Wrap(err, "elastic search connection")
					}
					log.Info().Msg("elastic search connected")
				}
			case storage.RedisName:
				if sinks.Redis == nil {
					sinks.Redis, err = storage.NewRedis(&cfg.Connection.Redis)
					if err != nil {
						sinks.Close()
						return storage.Sinks{}, errors.Wrap(err, "redis connection")
					}
					log.Info().Msg("redis connected")
				}
			}
		}
	}
	return sinks, nil
}

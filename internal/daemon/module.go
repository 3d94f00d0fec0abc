package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/matheus3301/huddle/internal/api"
	"github.com/matheus3301/huddle/internal/bus"
	"github.com/matheus3301/huddle/internal/call"
	"github.com/matheus3301/huddle/internal/config"
	"github.com/matheus3301/huddle/internal/dispatch"
	"github.com/matheus3301/huddle/internal/lock"
	"github.com/matheus3301/huddle/internal/logging"
	"github.com/matheus3301/huddle/internal/media"
	"github.com/matheus3301/huddle/internal/notify"
	"github.com/matheus3301/huddle/internal/presence"
	"github.com/matheus3301/huddle/internal/profile"
	"github.com/matheus3301/huddle/internal/status"
	"github.com/matheus3301/huddle/internal/store"
	intsync "github.com/matheus3301/huddle/internal/sync"
	"github.com/matheus3301/huddle/internal/transport"
	"github.com/matheus3301/huddle/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// recordingChunk is how often the recorder samples the remote stream.
const recordingChunk = time.Second

// Params holds the resolved profile passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string // optional override for testing; empty = use default
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideSettings,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideWriter,
			provideDirectory,
			provideAggregator,
			provideTransport,
			provideDispatcher,
			provideTyping,
			provideSyncEngine,
			provideMediaSource,
			provideConnector,
			provideCallMachine,
			provideControlService,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideSettings(p Params) (*config.Profile, error) {
	path := profile.SettingsPath(p.ProfileName)
	prof, err := config.LoadProfile(path)
	if err != nil {
		return nil, fmt.Errorf("load profile settings: %w", err)
	}
	if prof.User.ID == "" {
		return nil, fmt.Errorf("profile %q has no user id: set [user] id in %s", p.ProfileName, path)
	}
	return prof, nil
}

func provideLogger(p Params, prof *config.Profile) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, prof.Log.Level)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, prof *config.Profile, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName), prof.User.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so two daemons never open the same cache.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.StorePath(p.ProfileName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideWriter(db *store.DB, prof *config.Profile, logger *zap.Logger) *store.Writer {
	return store.NewWriter(db, prof.Store.WriteQueue, logger.Named("store"))
}

func provideDirectory() *presence.Directory {
	return presence.NewDirectory()
}

func provideAggregator() *notify.Aggregator {
	return notify.NewAggregator()
}

func provideTransport(prof *config.Profile, b *bus.Bus, m *status.Machine, logger *zap.Logger) *transport.Client {
	return transport.NewClient(transport.Options{
		URL:               prof.Transport.URL,
		Token:             prof.Transport.Token,
		ReconnectBase:     prof.Transport.ReconnectBase.Duration,
		ReconnectMax:      prof.Transport.ReconnectMax.Duration,
		MaxReconnects:     prof.Transport.MaxReconnects,
		HeartbeatInterval: prof.Transport.HeartbeatInterval.Duration,
	}, b, m, logger.Named("transport"))
}

func provideDispatcher(client *transport.Client, logger *zap.Logger) *dispatch.Dispatcher {
	return dispatch.New(client, logger.Named("dispatch"))
}

func provideTyping(d *dispatch.Dispatcher, prof *config.Profile, logger *zap.Logger) *typing.Indicator {
	return typing.New(d, prof.User.ID, prof.Typing.StopDelay.Duration, logger.Named("typing"))
}

func identity(prof *config.Profile) intsync.Identity {
	return intsync.Identity{
		User: store.Participant{
			ID:     prof.User.ID,
			Name:   prof.User.Name,
			Avatar: prof.User.Avatar,
		},
		PeerHandle: prof.User.PeerHandle,
		Location:   presence.Location{Lat: prof.User.Latitude, Lng: prof.User.Longitude},
	}
}

func provideSyncEngine(prof *config.Profile, w *store.Writer, db *store.DB, d *dispatch.Dispatcher, dir *presence.Directory, notes *notify.Aggregator, b *bus.Bus, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(identity(prof), w, db, d, dir, notes, b, logger.Named("sync"))
}

func provideMediaSource(prof *config.Profile) (media.Source, error) {
	return media.NewSource(prof.Media.Mode)
}

func provideConnector(logger *zap.Logger) *media.Loopback {
	return media.NewLoopback(logger.Named("media"))
}

func provideCallMachine(p Params, prof *config.Profile, d *dispatch.Dispatcher, dir *presence.Directory, src media.Source, conn *media.Loopback, b *bus.Bus, logger *zap.Logger) *call.Machine {
	recordings := prof.Media.RecordingsDir
	if recordings == "" {
		recordings = profile.RecordingsDir(p.ProfileName)
	}
	return call.NewMachine(call.Deps{
		Self:      prof.User.ID,
		Handle:    prof.User.PeerHandle,
		Signaler:  d,
		Directory: dir,
		Source:    src,
		Connector: conn,
		NewRecorder: func(s media.Stream) (media.Recorder, error) {
			return media.NewChunkRecorder(s, recordingChunk)
		},
		Sink: media.DirSink{Dir: recordings},
	}, b, logger.Named("call"))
}

func provideControlService(p Params, engine *intsync.Engine, dir *presence.Directory, notes *notify.Aggregator, calls *call.Machine, ind *typing.Indicator, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.ControlService {
	return api.NewControlService(p.ProfileName, engine, dir, notes, calls, ind, m, b, logger.Named("api"))
}

type lifecycleParams struct {
	fx.In

	Settings  *config.Profile
	Server    *Server
	Lock      *lock.Lock
	DB        *store.DB
	Writer    *store.Writer
	Transport *transport.Client
	Engine    *intsync.Engine
	Calls     *call.Machine
	Typing    *typing.Indicator
	Connector *media.Loopback
	Machine   *status.Machine
	Logger    *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleParams) {
	logger := d.Logger
	var (
		openCancel context.CancelFunc
		openDone   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := d.Engine.Load(ctx); err != nil {
				return err
			}

			// Consumers subscribe before the transport starts publishing.
			d.Engine.Start(context.Background())
			d.Calls.Start(context.Background())

			if err := d.Calls.ProbeMedia(ctx); err != nil {
				logger.Warn("no media device, inbound calls will be answered unavailable", zap.Error(err))
			}

			go func() {
				if err := d.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			if d.Settings.Transport.URL == "" {
				logger.Info("no transport url configured, running offline")
				_ = d.Machine.Reach(status.Offline)
				return nil
			}
			openCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			openCancel, openDone = cancel, make(chan struct{})
			go func() {
				defer close(openDone)
				defer cancel()
				if err := d.Transport.Open(openCtx); err != nil {
					logger.Error("event stream connect failed", zap.Error(err))
					return
				}
				if err := d.Engine.Announce(openCtx); err != nil {
					logger.Warn("presence announce failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Typing.Cancel()
			d.Calls.Stop()
			d.Engine.Stop()
			// An in-flight dial must settle before Close can see the stream.
			if openCancel != nil {
				openCancel()
				<-openDone
			}
			if err := d.Transport.Close(); err != nil {
				logger.Warn("error closing event stream", zap.Error(err))
			}
			_ = d.Connector.Close()
			d.Server.Stop(ctx)
			d.Writer.Close()
			if err := d.DB.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/fx"

	"github.com/zde37/chordring/internal/api"
	"github.com/zde37/chordring/internal/chord"
	"github.com/zde37/chordring/internal/config"
	"github.com/zde37/chordring/internal/transport"
	"github.com/zde37/chordring/pkg"
)

// joinRetryDelay is the pause before the first retry of the bootstrap peer.
const joinRetryDelay = 500 * time.Millisecond

// listeners are bound before the node is built so that port 0 resolves
// to the address the node advertises.
type listeners struct {
	grpc net.Listener
	http net.Listener // nil when the admin API is disabled
}

func newApp(cfg *config.Config, logger *pkg.Logger, opts ...fx.Option) *fx.App {
	return fx.New(
		fx.NopLogger,
		fx.StartTimeout(startTimeout(cfg)),
		appOptions(cfg, logger),
		fx.Options(opts...),
	)
}

func appOptions(cfg *config.Config, logger *pkg.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg, logger),
		fx.Provide(
			newListeners,
			newGRPCClient,
			newNode,
			newGRPCServer,
			newAPIServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

// startTimeout leaves room for every join attempt.
func startTimeout(cfg *config.Config) time.Duration {
	attempts := time.Duration(max(cfg.JoinAttempts, 1))
	return 15*time.Second + attempts*(cfg.RPCTimeout+joinRetryDelay)
}

func newListeners(lc fx.Lifecycle, cfg *config.Config) (*listeners, error) {
	l := &listeners{}

	lis, err := net.Listen("tcp", cfg.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	l.grpc = lis
	cfg.Port = lis.Addr().(*net.TCPAddr).Port

	if cfg.HTTPPort > 0 {
		httpLis, err := net.Listen("tcp", net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.HTTPPort)))
		if err != nil {
			lis.Close()
			return nil, fmt.Errorf("failed to listen for HTTP: %w", err)
		}
		l.http = httpLis
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			l.close()
			return nil
		},
	})
	return l, nil
}

// close releases listeners that were never handed to a server.
func (l *listeners) close() {
	_ = l.grpc.Close()
	if l.http != nil {
		_ = l.http.Close()
	}
}

func newGRPCClient(lc fx.Lifecycle, cfg *config.Config, logger *pkg.Logger) (*transport.GRPCClient, error) {
	client, err := transport.NewGRPCClient(logger, cfg.RPCTimeout, transport.DefaultPoolSize)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

// newNode depends on the listeners so that cfg.Port is final.
func newNode(cfg *config.Config, logger *pkg.Logger, client *transport.GRPCClient, _ *listeners) (*chord.ChordNode, error) {
	return chord.NewChordNode(cfg, logger, client)
}

func newGRPCServer(lc fx.Lifecycle, node *chord.ChordNode, logger *pkg.Logger, lis *listeners) (*transport.GRPCServer, error) {
	server, err := transport.NewGRPCServer(node, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start(lis.grpc)
		},
		OnStop: func(context.Context) error {
			server.Stop()
			return nil
		},
	})
	return server, nil
}

// newAPIServer returns nil when the admin API is disabled.
func newAPIServer(lc fx.Lifecycle, cfg *config.Config, node *chord.ChordNode, logger *pkg.Logger, lis *listeners) (*api.Server, error) {
	if lis.http == nil {
		return nil, nil
	}

	server, err := api.NewServer(node, &api.Config{
		HTTPPort:      cfg.HTTPPort,
		LookupTimeout: cfg.RPCTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	node.SetBroadcaster(server.Hub())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return server.Start(lis.http)
		},
		OnStop: func(ctx context.Context) error {
			return server.Stop(ctx)
		},
	})
	return server, nil
}

// registerLifecycle creates or joins the ring once every server is up, and
// shuts the node down first on stop.
func registerLifecycle(lc fx.Lifecycle, cfg *config.Config, node *chord.ChordNode, server *transport.GRPCServer, _ *api.Server, logger *pkg.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := enterRing(ctx, cfg, node, logger); err != nil {
				return err
			}
			server.SetServing(true)

			logger.Info().
				Str("node_id", node.ID().String()).
				Str("address", node.Address().Address()).
				Msg("Chord node is ready")
			return nil
		},
		OnStop: func(context.Context) error {
			server.SetServing(false)
			return node.Shutdown()
		},
	})
}

func enterRing(ctx context.Context, cfg *config.Config, node *chord.ChordNode, logger *pkg.Logger) error {
	if cfg.Bootstrap == "" {
		return node.Create()
	}

	bootstrap, err := resolveBootstrap(cfg.Bootstrap)
	if err != nil {
		return err
	}

	logger.Info().
		Str("bootstrap", bootstrap.String()).
		Msg("Joining existing Chord ring")

	return retry.Do(func() error {
		return node.Join(ctx, bootstrap)
	},
		retry.Context(ctx),
		retry.Attempts(max(cfg.JoinAttempts, 1)),
		retry.Delay(joinRetryDelay),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, pkg.ErrBootstrapUnreachable)
		}),
		retry.OnRetry(func(n uint, err error) {
			logger.Warn().Err(err).Uint("attempt", n+1).Msg("Join failed, retrying")
		}),
		retry.LastErrorOnly(true),
	)
}

// resolveBootstrap accepts "ip:port" or "hostname:port".
func resolveBootstrap(addr string) (netip.AddrPort, error) {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return ap, nil
	}

	tcp, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("%w: %s: %w", pkg.ErrBootstrapUnreachable, addr, err)
	}
	ap := tcp.AddrPort()
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()), nil
}

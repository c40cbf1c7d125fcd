package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/texstack/internal/backend/bundle"
	"github.com/roach88/texstack/internal/backend/fmtcache"
	"github.com/roach88/texstack/internal/backend/local"
	"github.com/roach88/texstack/internal/backend/memfs"
	"github.com/roach88/texstack/internal/backend/netcache"
	"github.com/roach88/texstack/internal/backend/stdio"
	"github.com/roach88/texstack/internal/errs"
	"github.com/roach88/texstack/internal/provider"
)

// Env carries the process resources providers may be bound to.
type Env struct {
	Stdout io.Writer
	Stdin  io.Reader
	// Context bounds network fetches. Defaults to context.Background().
	Context context.Context
	Logger  *slog.Logger
	// S3 builds the client for netcache layers. Defaults to an anonymous
	// client from netcache.NewClient.
	S3 func(ProviderConfig) netcache.Client
}

// Built is a job's provider list, in priority order.
type Built struct {
	Providers []provider.Provider
	// LocalRoots lists the directories of local layers, for watching.
	LocalRoots []string

	closers []io.Closer
}

// Close releases resources held by the providers.
func (b *Built) Close() error {
	var first error
	for _, c := range b.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// Stack returns the providers as a dispatch stack.
func (b *Built) Stack() *provider.Stack {
	return provider.NewStack(b.Providers...)
}

// Build creates the job's providers. On error nothing stays open.
func (j *Job) Build(env Env) (*Built, error) {
	if env.Context == nil {
		env.Context = context.Background()
	}
	if env.Logger == nil {
		env.Logger = slog.New(slog.DiscardHandler)
	}

	built := &Built{}
	for i, pc := range j.Providers {
		p, err := j.buildOne(pc, env, built)
		if err != nil {
			built.Close()
			return nil, errs.Wrap(err, "building providers[%d] (%s)", i, pc.Type)
		}
		env.Logger.Debug("provider layer", "index", i, "provider", provider.Describe(p))
		built.Providers = append(built.Providers, p)
	}
	return built, nil
}

func (j *Job) buildOne(pc ProviderConfig, env Env, built *Built) (provider.Provider, error) {
	switch pc.Type {
	case TypeLocal:
		var opts []local.Option
		if pc.Primary != "" {
			opts = append(opts, local.WithPrimary(pc.Primary))
		}
		if pc.Writable {
			opts = append(opts, local.Writable())
		}
		if pc.FormatDir != "" {
			opts = append(opts, local.WithFormatDir(pc.FormatDir))
		}
		d, err := local.New(j.resolve(pc.Path), opts...)
		if err != nil {
			return nil, err
		}
		built.LocalRoots = append(built.LocalRoots, d.Root())
		return d, nil

	case TypeMemFS:
		opts := []memfs.Option{}
		if pc.Primary != "" {
			opts = append(opts, memfs.WithPrimary(pc.Primary))
		}
		if !pc.Writable {
			opts = append(opts, memfs.ReadOnly())
		}
		fs := memfs.New(opts...)
		for name, content := range pc.Files {
			fs.PutString(name, content)
		}
		return fs, nil

	case TypeBundle:
		b, err := bundle.Open(j.resolve(pc.Path))
		if err != nil {
			return nil, err
		}
		built.closers = append(built.closers, b)
		return b, nil

	case TypeFormatCache:
		codec, err := fmtcache.ParseCodec(pc.Codec)
		if err != nil {
			return nil, err
		}
		return fmtcache.New(j.resolve(pc.Path), codec)

	case TypeNetCache:
		var client netcache.Client
		if env.S3 != nil {
			client = env.S3(pc)
		} else {
			client = netcache.NewClient(netcache.ClientOptions{
				Region:    pc.Region,
				Endpoint:  pc.Endpoint,
				PathStyle: pc.PathStyle,
			})
		}
		opts := []netcache.Option{netcache.WithPrefix(pc.Prefix), netcache.WithContext(env.Context)}
		if pc.Timeout != "" {
			d, err := parseTimeout(pc.Timeout)
			if err != nil {
				return nil, err
			}
			opts = append(opts, netcache.WithTimeout(d))
		}
		return netcache.New(client, pc.Bucket, j.resolve(pc.Path), opts...)

	case TypeStdio:
		var opts []stdio.Option
		if pc.Stdin && env.Stdin != nil {
			opts = append(opts, stdio.WithStdin(env.Stdin))
		}
		if pc.Primary != "" {
			opts = append(opts, stdio.WithPrimaryName(pc.Primary))
		}
		return stdio.New(env.Stdout, opts...), nil

	default:
		return nil, errs.Foreign(errs.KindConfig, fmt.Errorf("unknown provider type %q", pc.Type))
	}
}

func parseTimeout(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, errs.Foreign(errs.KindConfig, err)
	}
	if d <= 0 {
		return 0, errs.Foreign(errs.KindConfig, fmt.Errorf("timeout must be positive, got %s", s))
	}
	return d, nil
}

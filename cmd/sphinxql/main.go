// Command sphinxql runs SphinxQL statements against a configured search
// profile and prints the result sets.
//
//	sphinxql -c sphinxql.yaml -P catalog -p :q="red shoes" \
//	    "SELECT id, title FROM products WHERE MATCH(:q) LIMIT 5" "SHOW META"
//
// Every statement given on the command line goes out in one batch. With
// --every, the batch is repeated until interrupted and the config file is
// watched for changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/koustreak/sphinxql/internal/balancer"
	"github.com/koustreak/sphinxql/internal/config"
	"github.com/koustreak/sphinxql/internal/database/mysql"
	"github.com/koustreak/sphinxql/internal/errs"
	"github.com/koustreak/sphinxql/internal/filestore"
	objstore "github.com/koustreak/sphinxql/internal/filestore/minio"
	"github.com/koustreak/sphinxql/internal/healthcache"
	"github.com/koustreak/sphinxql/internal/logger"
	"github.com/koustreak/sphinxql/internal/metrics"
	"github.com/koustreak/sphinxql/internal/sphinxql"
)

type options struct {
	configPath    string
	configBucket  string
	configKey     string
	minioEndpoint string
	minioSSL      bool

	profile     string
	format      string
	debug       bool
	params      []string
	metricsFile string
	every       time.Duration

	listIndexes bool
	describe    string

	statements []string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, "sphinxql:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (*options, error) {
	o := &options{}
	fs := pflag.NewFlagSet("sphinxql", pflag.ContinueOnError)

	fs.StringVarP(&o.configPath, "config", "c", "sphinxql.yaml", "path to the config file")
	fs.StringVar(&o.configBucket, "config-bucket", "", "read the config from this object-store bucket instead of a file")
	fs.StringVar(&o.configKey, "config-key", "sphinxql.yaml", "object key of the config in --config-bucket")
	fs.StringVar(&o.minioEndpoint, "minio-endpoint", "localhost:9000", "object-store endpoint (credentials from MINIO_ACCESS_KEY / MINIO_SECRET_KEY)")
	fs.BoolVar(&o.minioSSL, "minio-ssl", false, "use TLS for the object store")

	fs.StringVarP(&o.profile, "profile", "P", "main", "profile to query")
	fs.StringVarP(&o.format, "format", "f", "json", "output format: json or yaml")
	fs.BoolVar(&o.debug, "debug", false, "log statements instead of sending them")
	fs.StringArrayVarP(&o.params, "param", "p", nil, "placeholder binding, :name=value (repeatable)")
	fs.StringVar(&o.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")
	fs.DurationVar(&o.every, "every", 0, "repeat the batch at this interval until interrupted")

	fs.BoolVar(&o.listIndexes, "list-indexes", false, "list the indexes of the resolved node")
	fs.StringVar(&o.describe, "describe", "", "describe one index")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	o.statements = fs.Args()

	if o.format != "json" && o.format != "yaml" {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "unknown format %q", o.format)
	}
	if len(o.statements) == 0 && !o.listIndexes && o.describe == "" {
		return nil, errs.New(errs.ErrKindInvalidInput, "no statements given")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	params, err := parseParams(o.params)
	if err != nil {
		return err
	}

	cfg, v, src, err := loadConfig(ctx, o)
	if err != nil {
		return err
	}
	if src != nil {
		defer src.Close()
	}
	debug := o.debug || cfg.Debug

	log := logger.New(&cfg.Log)
	defer log.Close()
	logger.SetGlobal(log)
	defer logger.SetGlobal(nil)
	ctx = log.WithContext(ctx)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}
	if o.metricsFile != "" {
		defer func() {
			if werr := prometheus.WriteToTextfile(o.metricsFile, reg); werr != nil {
				log.ErrorWith("writing metrics failed", werr, map[string]interface{}{"file": o.metricsFile})
			}
		}()
	}

	store, closeStore, err := healthcache.OpenStore(ctx, cfg.HealthCache)
	if err != nil {
		return err
	}
	defer closeStore()

	cache := healthcache.New(store,
		healthcache.WithTTL(cfg.HealthCache.TTL),
		healthcache.WithPrefix(cfg.HealthCache.KeyPrefix),
		healthcache.WithLogger(log),
		healthcache.WithMetrics(m),
	)

	dial := mysql.Dialer(&cfg.Transport)
	var prober balancer.Prober = balancer.DialProber{Dial: dial, Timeout: cfg.Transport.ConnectTimeout}
	if debug {
		prober = balancer.AlwaysLive
	}
	bal := balancer.New(prober,
		balancer.WithCache(cache),
		balancer.WithMetrics(m),
	)

	live := config.NewLive(cfg)
	clients := sphinxql.NewRegistry(live, bal, sphinxql.NewFactory(debug), sphinxql.Deps{
		Dialer:  dial,
		Metrics: m,
	})
	defer clients.Close()

	// Reloads land here and are applied between batches, never while a
	// client is in use.
	var next atomic.Pointer[config.Config]
	reload := func(cfg *config.Config) { next.Store(cfg) }
	applyReload := func() {
		cfg := next.Swap(nil)
		if cfg == nil {
			return
		}
		live.Store(cfg)
		// Clients stay bound to nodes of the previous config otherwise.
		if err := clients.Close(); err != nil {
			log.WarnWith("closing clients after reload", err, nil)
		}
	}
	if o.every > 0 {
		switch {
		case v != nil:
			config.Watch(v, log, reload)
		case src != nil:
			go config.WatchObject(ctx, src, o.configBucket, o.configKey, o.every, log, reload)
		}
	}

	once := func() error {
		c, err := clients.Get(ctx, o.profile)
		if err != nil {
			return err
		}
		out, err := execute(ctx, c, o, params)
		if err != nil {
			if errs.IsConnectionFailed(err) {
				_ = clients.Discard(ctx, o.profile)
			}
			return err
		}
		return write(stdout, o.format, out)
	}

	if o.every <= 0 {
		return once()
	}

	ticker := time.NewTicker(o.every)
	defer ticker.Stop()
	for {
		applyReload()
		if err := once(); err != nil {
			log.ErrorWith("batch failed", err, map[string]interface{}{"profile": o.profile})
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// loadConfig reads the config from the file or, with --config-bucket, from
// the object store. Exactly one of the returned viper and source is non-nil
// on success.
func loadConfig(ctx context.Context, o *options) (*config.Config, *viper.Viper, filestore.Source, error) {
	if o.configBucket == "" {
		cfg, v, err := config.Load(o.configPath)
		return cfg, v, nil, err
	}

	src, err := objstore.New(ctx, &filestore.Config{
		Endpoint:  o.minioEndpoint,
		AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		SecretKey: os.Getenv("MINIO_SECRET_KEY"),
		UseSSL:    o.minioSSL,
	})
	if err != nil {
		return nil, nil, nil, err
	}

	cfg, err := config.LoadObject(ctx, src, o.configBucket, o.configKey)
	if err != nil {
		_ = src.Close()
		return nil, nil, nil, err
	}
	return cfg, nil, src, nil
}

// execute runs what o asks for on c and returns the value to print.
func execute(ctx context.Context, c sphinxql.Client, o *options, params sphinxql.Params) (any, error) {
	switch {
	case o.listIndexes:
		return sphinxql.ListIndexes(ctx, c)
	case o.describe != "":
		return sphinxql.DescribeIndex(ctx, c, o.describe)
	}

	for _, stmt := range o.statements {
		c.AddQuery(stmt, params)
	}
	sets, err := c.MultiQuery(ctx)
	if err != nil {
		if msg := c.GetError(); msg != "" {
			return nil, fmt.Errorf("%w (server said: %q)", err, msg)
		}
		return nil, err
	}
	return sets, nil
}

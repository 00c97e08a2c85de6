// Command kflow-sample runs a demo pipeline:
//
//	gen -> fanout -> sample
//	              -> table
//	              -> archive (optional, S3)
//	              -> output  (optional, Kafka)
//
// Interrupting and restarting it resumes after the last committed
// transaction of the durable table stage.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/birdayz/kflow"
	"github.com/birdayz/kflow/connectors/kafka"
	"github.com/birdayz/kflow/connectors/s3"
	"github.com/birdayz/kflow/kdag"
	"github.com/birdayz/kflow/kprocessor"
	"github.com/birdayz/kflow/kstate"
	"github.com/birdayz/kflow/pkg/log"
	"github.com/birdayz/kflow/processors"
)

func main() {
	var (
		stateDir = flag.String("state-dir", "/tmp/kflow-sample", "storage directory")
		events   = flag.Uint64("events", 100_000, "number of generated events, 0 runs forever")
		txSize   = flag.Uint64("tx-size", 100, "events per transaction")
		every    = flag.Uint64("sample-every", processors.DefaultSampleInterval, "sample interval")
		brokers  = flag.String("kafka-brokers", "", "comma separated brokers; enables the kafka output")
		topic    = flag.String("kafka-topic", "kflow-sample", "output topic")
		s3Addr   = flag.String("s3-endpoint", "", "S3 endpoint; enables the archive output")
		bucket   = flag.String("s3-bucket", "kflow-sample", "archive bucket")
		debug    = flag.Bool("debug", false, "log every delivery")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := log.New(level)

	if err := run(logger, *stateDir, *events, *txSize, *every, *brokers, *topic, *s3Addr, *bucket, *debug); err != nil {
		logger.Error("Sample failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, stateDir string, events, txSize, every uint64, brokers, topic, s3Addr, bucket string, debug bool) error {
	table := processors.NewMaterializeSink("rows")

	b := kdag.NewBuilder()
	b.MustAddSource("gen", &processors.GeneratorSource{Total: events, TxSize: txSize})
	b.MustAddProcessor("fanout", processors.NewBroadcast())
	b.MustAddSink("sample", processors.NewSampleSink(processors.WithSampleInterval(every)))
	b.MustAddSink("table", table)
	b.MustConnect(kdag.Default("gen"), kdag.Default("fanout"))
	b.MustConnect(kdag.Default("fanout"), kdag.Default("sample"))
	b.MustConnect(kdag.Default("fanout"), kdag.Default("table"))

	if brokers != "" {
		b.MustAddSink("output", kafka.NewSink(kafka.SinkConfig{
			Brokers:     strings.Split(brokers, ","),
			Topic:       topic,
			CreateTopic: true,
		}))
		b.MustConnect(kdag.Default("fanout"), kdag.Default("output"))
	}
	if s3Addr != "" {
		b.MustAddSink("archive", s3.NewSink(s3.SinkConfig{
			Endpoint:  s3Addr,
			AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Bucket:    bucket,
			Prefix:    "sample",
		}))
		b.MustConnect(kdag.Default("fanout"), kdag.Default("archive"))
	}

	dag, err := b.Build()
	if err != nil {
		return err
	}

	opts := []kflow.Option{
		kflow.WithLog(logger),
		kflow.WithStateDir(stateDir),
	}
	var stats kprocessor.Stats
	opts = append(opts, kflow.WithInterceptors(kprocessor.MetricsInterceptor(&stats)))
	if debug {
		opts = append(opts, kflow.WithInterceptors(kprocessor.LoggingInterceptor(logger)))
	}

	app, err := kflow.New(dag, opts...)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx); err != nil {
		return err
	}

	var rows int
	err = app.Env().View(func(txn *kstate.ReadTxn) error {
		rows, err = table.Table().Count(txn)
		return err
	})
	if err != nil {
		return fmt.Errorf("count rows: %w", err)
	}
	logger.Info("Pipeline stopped",
		"rows", rows,
		"messages", stats.Messages.Load(),
		"commits", stats.Commits.Load(),
		"errors", stats.Errors.Load(),
	)
	return nil
}

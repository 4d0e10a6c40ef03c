package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/epaper-book-tools/internal/settings"
)

const (
	natsFetchTimeout = 5 * time.Second
	ackWait          = 2 * time.Minute
	maxDeliver       = 5
)

// setupJetStream ensures all required NATS streams and object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg *settings.Config) error {
	streamCfg := newStreamConfig(cfg.NATS.PDFStreamName, cfg.NATS.PDFCreatedSubject)

	_, streamErr := jetStream.CreateStream(ctx, streamCfg)
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PDF stream: %w", streamErr)
	}

	stream, streamErr := jetStream.Stream(ctx, cfg.NATS.PDFStreamName)
	if streamErr != nil {
		return fmt.Errorf("failed to get PDF stream handle: %w", streamErr)
	}

	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, newConsumerConfig(cfg.NATS))
	if consumerErr != nil {
		return fmt.Errorf("failed to create PDF consumer: %w", consumerErr)
	}

	pngStreamCfg := newStreamConfig(cfg.NATS.PNGStreamName, cfg.NATS.PNGCreatedSubject)

	_, pngStreamErr := jetStream.CreateStream(ctx, pngStreamCfg)
	if pngStreamErr != nil && !errors.Is(pngStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PNG stream: %w", pngStreamErr)
	}

	for _, bucket := range []string{
		cfg.NATS.PDFObjectStoreBucket,
		cfg.NATS.PNGObjectStoreBucket,
		cfg.NATS.BookObjectStoreBucket,
	} {
		_, objStoreErr := jetStream.CreateObjectStore(ctx, newObjectStoreConfig(bucket))
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf("failed to create object store '%s': %w", bucket, objStoreErr)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:              name,
		Subjects:          []string{subject},
		Retention:         jetstream.WorkQueuePolicy,
		MaxConsumers:      -1,
		MaxMsgs:           -1,
		MaxBytes:          -1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: -1,
		MaxMsgSize:        -1,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Compression:       jetstream.NoCompression,
	}
}

// newConsumerConfig bounds redelivery so a PDF that keeps failing does not loop forever.
func newConsumerConfig(cfg settings.NATSConfig) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       cfg.PDFConsumerName,
		FilterSubject: cfg.PDFCreatedSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       ackWait,
		MaxDeliver:    maxDeliver,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
		MaxAckPending: -1,
	}
}

func newObjectStoreConfig(bucket string) jetstream.ObjectStoreConfig {
	return jetstream.ObjectStoreConfig{
		Bucket:   bucket,
		MaxBytes: -1,
		Storage:  jetstream.FileStorage,
		Replicas: 1,
	}
}

// stores holds the object store handles a job works with.
type stores struct {
	pdf  jetstream.ObjectStore
	png  jetstream.ObjectStore
	book jetstream.ObjectStore
}

func bindStores(ctx context.Context, jetStream jetstream.JetStream, cfg settings.NATSConfig) (stores, error) {
	var bound stores

	for _, binding := range []struct {
		bucket string
		target *jetstream.ObjectStore
	}{
		{cfg.PDFObjectStoreBucket, &bound.pdf},
		{cfg.PNGObjectStoreBucket, &bound.png},
		{cfg.BookObjectStoreBucket, &bound.book},
	} {
		store, storeErr := jetStream.ObjectStore(ctx, binding.bucket)
		if storeErr != nil {
			return stores{}, fmt.Errorf("failed to bind to object store '%s': %w", binding.bucket, storeErr)
		}

		*binding.target = store
	}

	return bound, nil
}

// processMessages implements the core worker loop. It returns nil once ctx is cancelled.
func processMessages(
	ctx context.Context,
	consumer jetstream.Consumer,
	jetStream jetstream.JetStream,
	cfg *settings.Config,
	conv *converter,
	appLogger *logger.Logger,
) error {
	bound, bindErr := bindStores(ctx, jetStream, cfg.NATS)
	if bindErr != nil {
		return bindErr
	}

	for ctx.Err() == nil {
		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if !errors.Is(fetchErr, context.Canceled) && !errors.Is(fetchErr, nats.ErrTimeout) {
				appLogger.Error("Error fetching messages: %v", fetchErr)
			}

			continue
		}

		for msg := range batch.Messages() {
			handleMessage(ctx, msg, jetStream, bound, cfg, conv, appLogger)
		}

		batchErr := batch.Error()
		if batchErr != nil && !errors.Is(batchErr, nats.ErrTimeout) {
			appLogger.Error("Error during message batch processing: %v", batchErr)
		}
	}

	appLogger.Info("Stopping worker: %v", ctx.Err())

	return nil
}

// handleMessage processes a single message. Undecodable events are terminated.
func handleMessage(
	ctx context.Context,
	msg jetstream.Msg,
	jetStream jetstream.JetStream,
	bound stores,
	cfg *settings.Config,
	conv *converter,
	appLogger *logger.Logger,
) {
	event, unmarshalErr := unmarshalEvent(msg.Data())
	if unmarshalErr != nil {
		appLogger.Error("Failed to create job: %v", unmarshalErr)

		termErr := msg.Term()
		if termErr != nil {
			appLogger.Error("Failed to TERM message: %v", termErr)
		}

		return
	}

	j := &job{
		msg:       msg,
		jetStream: jetStream,
		stores:    bound,
		nats:      cfg.NATS,
		conv:      conv,
		appLogger: appLogger,
		event:     event,
		header:    &event.Header,
	}
	j.run(ctx)
}

package quotepublisher

import (
	"context"
	"errors"
	"time"

	"github.com/krobus00/quote-service/internal/constant"
	"github.com/krobus00/quote-service/internal/entity"
	"github.com/krobus00/quote-service/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const defaultPublishTimeout = time.Second

// JetstreamQuotePublisher fans delivered batches out to other processes
// through the quote stream.
type JetstreamQuotePublisher struct {
	js             nats.JetStreamContext
	publishTimeout time.Duration
}

func NewJetstreamQuotePublisher(js nats.JetStreamContext, publishTimeout time.Duration) *JetstreamQuotePublisher {
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &JetstreamQuotePublisher{js: js, publishTimeout: publishTimeout}
}

func (p *JetstreamQuotePublisher) JetstreamEventInit(ctx context.Context) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.QuoteStreamName,
		Subjects:  []string{constant.QuoteStreamSubjectAll},
		Storage:   nats.MemoryStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    time.Minute,
		Replicas:  1,
	}

	stream, err := p.js.StreamInfo(constant.QuoteStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.QuoteStreamName)
		_, err = p.js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	logrus.Infof("updating stream: %s", constant.QuoteStreamName)
	_, err = p.js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}

	logrus.Infof("stream %s is ready", constant.QuoteStreamName)

	return nil
}

func (p *JetstreamQuotePublisher) ObserveQuotes(ctx context.Context, quotes []entity.Quote) error {
	if len(quotes) == 0 {
		return nil
	}

	event := entity.QuoteBatchEvent{
		Quotes:      entity.QuotesToPayloads(quotes),
		PublishedAt: time.Now().UnixMilli(),
	}

	_, err := util.CallWithTimeout(ctx, p.publishTimeout, func(context.Context) (struct{}, error) {
		return struct{}{}, util.PublishEvent(p.js, constant.QuoteStreamSubjectPrices, event)
	})

	return err
}

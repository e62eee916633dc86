package outbox_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/projectbarber/barber/libs/kafkax"
	"github.com/projectbarber/barber/services/booking-service/internal/outbox"
	"github.com/projectbarber/barber/services/booking-service/internal/testutil/pgtest"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	fail error
	msgs []kafka.Message
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.fail != nil {
		return w.fail
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestPublishBatch(t *testing.T) {
	pg := pgtest.Start(t)
	pg.Truncate(t)
	ctx := context.Background()
	repo := outbox.NewRepository()

	err := pg.Pool.InTx(ctx, func(tx pgx.Tx) error {
		for _, id := range []string{"appt-1", "appt-2", "appt-3"} {
			evt, err := outbox.NewEvent(outbox.AggregateAppointment, id, outbox.EventAppointmentCreated, map[string]string{"id": id})
			if err != nil {
				return err
			}
			if err := repo.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	pub := outbox.NewPublisher(pg.Pool, repo, slog.New(slog.NewTextHandler(io.Discard, nil)), outbox.PublisherConfig{BatchSize: 2})

	broken := &recordingWriter{fail: errors.New("broker down")}
	_, err = pub.PublishBatch(ctx, broken)
	require.Error(t, err)

	w := &recordingWriter{}
	n, err := pub.PublishBatch(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "failed batch stays unpublished")

	n, err = pub.PublishBatch(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = pub.PublishBatch(ctx, w)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.Len(t, w.msgs, 3)
	assert.Equal(t, "appt-1", string(w.msgs[0].Key))
	assert.Equal(t, outbox.EventAppointmentCreated, w.msgs[0].Topic)
	assert.Equal(t, outbox.EventAppointmentCreated, kafkax.HeaderValue(w.msgs[0].Headers, kafkax.HeaderEventType))
	assert.JSONEq(t, `{"id":"appt-3"}`, string(w.msgs[2].Value))
}

package publisher_test

import (
	"context"
	"errors"
	"testing"

	"vitals-bridge/internal/metrics"
	"vitals-bridge/internal/publisher"

	"github.com/stretchr/testify/require"
)

type capturePublisher struct {
	records      []metrics.Record
	connectivity []bool
	err          error
}

func (p *capturePublisher) PublishMetrics(ctx context.Context, rec metrics.Record) error {
	if p.err != nil {
		return p.err
	}
	p.records = append(p.records, rec)
	return nil
}

func (p *capturePublisher) PublishConnectivity(ctx context.Context, connected bool) error {
	if p.err != nil {
		return p.err
	}
	p.connectivity = append(p.connectivity, connected)
	return nil
}

func TestFanout_DeliversToAllPublishers(t *testing.T) {
	a := &capturePublisher{}
	b := &capturePublisher{}
	fanout := publisher.Fanout{a, b}

	rec := metrics.Record{"osc_heart_bpm": 72}
	require.NoError(t, fanout.PublishMetrics(context.Background(), rec))
	require.NoError(t, fanout.PublishConnectivity(context.Background(), true))

	require.Equal(t, []metrics.Record{rec}, a.records)
	require.Equal(t, []metrics.Record{rec}, b.records)
	require.Equal(t, []bool{true}, a.connectivity)
	require.Equal(t, []bool{true}, b.connectivity)
}

func TestFanout_StopsOnFirstError(t *testing.T) {
	boom := errors.New("broker unreachable")
	a := &capturePublisher{err: boom}
	b := &capturePublisher{}
	fanout := publisher.Fanout{a, b}

	err := fanout.PublishMetrics(context.Background(), metrics.Record{"x": 1})
	require.ErrorIs(t, err, boom)
	require.Empty(t, b.records)
}

func TestFanout_EmptyIsNoop(t *testing.T) {
	var fanout publisher.Fanout
	require.NoError(t, fanout.PublishMetrics(context.Background(), metrics.Record{"x": 1}))
	require.NoError(t, fanout.PublishConnectivity(context.Background(), false))
}

// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package device_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tempmesh/tempmesh/device"
	"github.com/tempmesh/tempmesh/mqtt"
)

type mockPublisher struct{ mock.Mock }

func (m *mockPublisher) Publish(
	ctx context.Context,
	topic string,
	payload []byte,
	opt ...mqtt.PublishOption,
) error {
	var opts mqtt.PublishOptions
	opts.Apply(opt)
	return m.Called(topic, string(payload), opts.Retain).Error(0)
}

func TestConstant(t *testing.T) {
	v, err := device.Constant(21.5).ReadTemperatureCelsius(context.Background())
	require.NoError(t, err)
	require.Equal(t, float32(21.5), v)
}

func TestSimulatedStaysInBounds(t *testing.T) {
	ctx := context.Background()
	s := device.NewSimulated(22, 0.5, 20, 24, 42)

	first, err := s.ReadTemperatureCelsius(ctx)
	require.NoError(t, err)
	require.Equal(t, float32(22), first)

	prev := first
	for range 1000 {
		v, err := s.ReadTemperatureCelsius(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, float32(20))
		require.LessOrEqual(t, v, float32(24))
		require.InDelta(t, prev, v, 0.5001)
		prev = v
	}
}

func TestSimulatedReproducible(t *testing.T) {
	ctx := context.Background()
	a := device.NewSimulated(22, 1, 0, 0, 7)
	b := device.NewSimulated(22, 1, 0, 0, 7)

	for range 10 {
		va, _ := a.ReadTemperatureCelsius(ctx)
		vb, _ := b.ReadTemperatureCelsius(ctx)
		require.Equal(t, va, vb)
	}
}

func TestSimulatedCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := device.NewSimulated(22, 1, 0, 0, 1).ReadTemperatureCelsius(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestThreshold(t *testing.T) {
	require.False(t, device.DefaultThreshold.On(25))
	require.True(t, device.DefaultThreshold.On(25.01))
	require.False(t, device.Threshold(30).On(29))
}

func TestLogIndicator(t *testing.T) {
	ctx := context.Background()
	i := device.NewLogIndicator(nil)

	_, set := i.State()
	require.False(t, set)

	require.NoError(t, i.SetIndicator(ctx, true))
	on, set := i.State()
	require.True(t, set)
	require.True(t, on)
}

func TestTopicIndicatorPublishesChanges(t *testing.T) {
	ctx := context.Background()
	pub := new(mockPublisher)
	pub.On("Publish", "temp/indicator", "1", true).Return(nil).Once()
	pub.On("Publish", "temp/indicator", "0", true).Return(nil).Once()

	i, err := device.NewTopicIndicator(pub, "temp/indicator")
	require.NoError(t, err)

	require.NoError(t, i.SetIndicator(ctx, true))
	require.NoError(t, i.SetIndicator(ctx, true))
	require.NoError(t, i.SetIndicator(ctx, false))
	pub.AssertExpectations(t)
}

func TestTopicIndicatorRetriesAfterFailure(t *testing.T) {
	ctx := context.Background()
	pub := new(mockPublisher)
	pub.On("Publish", "temp/indicator", "1", true).
		Return(errors.New("offline")).Once()
	pub.On("Publish", "temp/indicator", "1", true).Return(nil).Once()

	i, err := device.NewTopicIndicator(pub, "temp/indicator")
	require.NoError(t, err)

	require.Error(t, i.SetIndicator(ctx, true))
	require.NoError(t, i.SetIndicator(ctx, true))
	pub.AssertExpectations(t)

	_, err = device.NewTopicIndicator(pub, "temp/#")
	require.Error(t, err)
}

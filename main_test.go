package main

import (
	"encoding/json"
	"testing"
	"time"

	"ecofinds/internal/logger"
	"ecofinds/internal/services"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogProductEvent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := logProductEvent(&logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	body, err := json.Marshal(services.ProductEvent{
		Type:           services.EventProductPrimaryChanged,
		ProductID:      4,
		PrimaryImageID: 9,
		OccurredAt:     time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
	})
	require.NoError(t, err)

	require.NoError(t, handler(amqp.Delivery{Body: body}))
	entries := logs.FilterMessage("product event received").All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, services.EventProductPrimaryChanged, fields["type"])
		assert.EqualValues(t, 4, fields["product_id"])
		assert.EqualValues(t, 9, fields["primary_image_id"])
	}

	assert.Error(t, handler(amqp.Delivery{Body: []byte("not json")}))
}

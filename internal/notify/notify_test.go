package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/cartstate/pkg/logger"
)

func TestNew(t *testing.T) {
	n := Error(MsgOutOfStock, 4)

	assert.Equal(t, SeverityError, n.Severity)
	assert.Equal(t, "Requested quantity is out of stock", n.Message)
	assert.Equal(t, int64(4), n.ProductID)
	assert.False(t, n.CreatedAt.IsZero())
	_, err := uuid.Parse(n.ID)
	assert.NoError(t, err)

	assert.Equal(t, SeverityInfo, Info(MsgProductAdded, 1).Severity)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(logger.NewWithWriter("cart-test", "info", &buf))

	ctx := logger.WithCorrelationID(context.Background(), "corr-7")
	sink.Notify(ctx, Error(MsgRemoveFailed, 9))

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "WARN", out["level"])
	assert.Equal(t, "Failed to remove product", out["message"])
	assert.Equal(t, "corr-7", out["correlation_id"])
	assert.EqualValues(t, 9, out["product_id"])
}

func TestFanout_DeliversInOrderAndSkipsNil(t *testing.T) {
	var got []string
	record := func(tag string) Sink {
		return SinkFunc(func(_ context.Context, n Notification) { got = append(got, tag+":"+n.Message) })
	}

	Fanout{record("a"), nil, record("b")}.Notify(context.Background(), Info(MsgProductAdded, 1))

	assert.Equal(t, []string{"a:Product added to cart", "b:Product added to cart"}, got)
}

func TestDiscard(t *testing.T) {
	assert.NotPanics(t, func() { Discard.Notify(context.Background(), Info("x", 1)) })
}

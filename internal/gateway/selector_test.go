package gateway

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/enums"
)

type fakeClient struct {
	tag enums.PaymentGateway
}

func (f fakeClient) Tag() enums.PaymentGateway { return f.tag }
func (f fakeClient) Charge(context.Context, ChargeRequest) (*ChargeResult, error) {
	return nil, nil
}
func (f fakeClient) Refund(context.Context, RefundRequest) (*RefundResult, error) {
	return nil, nil
}
func (f fakeClient) VerifyWebhookSignature([]byte, http.Header) bool { return false }
func (f fakeClient) ParseWebhookEvent([]byte) (*Event, error)        { return nil, nil }

func TestSelectorResolve(t *testing.T) {
	selector, err := NewSelector(
		fakeClient{tag: enums.GatewayStripe},
		fakeClient{tag: enums.GatewaySquare},
	)
	require.NoError(t, err)

	client, err := selector.Resolve(enums.GatewaySquare)
	require.NoError(t, err)
	assert.Equal(t, enums.GatewaySquare, client.Tag())

	_, err = selector.Resolve(enums.PaymentGateway("paypal"))
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}

func TestNewSelectorRejectsDuplicates(t *testing.T) {
	_, err := NewSelector(
		fakeClient{tag: enums.GatewayStripe},
		fakeClient{tag: enums.GatewayStripe},
	)
	require.Error(t, err)
}

func TestForLocation(t *testing.T) {
	assert.Equal(t, enums.GatewaySquare, ForLocation("US"))
	assert.Equal(t, enums.GatewaySquare, ForLocation(" ca "))
	assert.Equal(t, enums.GatewayStripe, ForLocation("GB"))
	assert.Equal(t, enums.GatewayStripe, ForLocation(""))
}

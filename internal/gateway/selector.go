package gateway

import (
	"fmt"
	"strings"

	pkgerrors "github.com/mentorahq/mentora-backend/pkg/errors"
	"github.com/mentorahq/mentora-backend/pkg/enums"
)

// squareLocations are the buyer location codes routed to Square at checkout.
// Everything else goes through Stripe.
var squareLocations = map[string]struct{}{
	"US": {},
	"CA": {},
}

// ForLocation picks the gateway tag stored on a new order. The tag is
// persisted with the order and drives every later gateway lookup.
func ForLocation(code string) enums.PaymentGateway {
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if _, ok := squareLocations[normalized]; ok {
		return enums.GatewaySquare
	}
	return enums.GatewayStripe
}

// Selector resolves a gateway client by the tag stored on an order.
type Selector struct {
	clients map[enums.PaymentGateway]Client
}

// NewSelector indexes the provided clients by tag.
func NewSelector(clients ...Client) (*Selector, error) {
	indexed := make(map[enums.PaymentGateway]Client, len(clients))
	for _, client := range clients {
		if client == nil {
			return nil, fmt.Errorf("nil gateway client")
		}
		tag := client.Tag()
		if !tag.IsValid() {
			return nil, fmt.Errorf("gateway client with invalid tag %q", tag)
		}
		if _, exists := indexed[tag]; exists {
			return nil, fmt.Errorf("duplicate gateway client for tag %q", tag)
		}
		indexed[tag] = client
	}
	return &Selector{clients: indexed}, nil
}

// Resolve returns the client for a stored tag. An unknown tag means the
// deployment is miswired, not that the caller did anything wrong.
func (s *Selector) Resolve(tag enums.PaymentGateway) (Client, error) {
	client, ok := s.clients[tag]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("no gateway client registered for tag %q", tag))
	}
	return client, nil
}

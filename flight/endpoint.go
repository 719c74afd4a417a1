package flight

import (
	"fmt"

	"github.com/apache/arrow-go/v18/arrow/flight"
)

// SelectEndpoint returns the first endpoint, in plan order, whose ticket is
// non-empty. Locations are not consulted: the ticket is always redeemed on the
// channel that produced the plan.
func SelectEndpoint(info *flight.FlightInfo) (*flight.FlightEndpoint, error) {
	for _, endpoint := range info.GetEndpoint() {
		if len(endpoint.GetTicket().GetTicket()) > 0 {
			return endpoint, nil
		}
	}
	return nil, fmt.Errorf("%w: %d endpoints without ticket", ErrNoExecutionEndpoint, len(info.GetEndpoint()))
}

func endpointLocations(endpoint *flight.FlightEndpoint) []string {
	locations := make([]string, 0, len(endpoint.GetLocation()))
	for _, location := range endpoint.GetLocation() {
		locations = append(locations, location.GetUri())
	}
	return locations
}

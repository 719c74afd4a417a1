package flighttest

import (
	"context"
	"encoding/base64"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"
)

// service adds the handshake on top of the Flight SQL dispatcher.
type service struct {
	flight.FlightServer
	backend *Backend
}

// Handshake accepts either a Basic authorization header, answered with a
// bearer token header, or a BasicAuth request payload, answered with the
// token as response payload.
func (s *service) Handshake(stream flight.FlightService_HandshakeServer) error {
	b := s.backend
	b.handshakes.Add(1)

	if err := sleep(stream.Context(), b.cfg.HandshakeDelay); err != nil {
		return err
	}

	if header := firstValue(stream.Context(), "authorization"); header != "" {
		id, secret, ok := parseBasic(header)
		if !ok || !b.validCredential(id, secret) {
			b.logger.Debug("Handshake rejected", "flavor", "basic")
			return status.Error(codes.Unauthenticated, "invalid credentials")
		}
		token := b.issueToken()
		b.logger.Debug("Handshake accepted", "flavor", "basic")
		return stream.SendHeader(metadata.Pairs("authorization", "Bearer "+token))
	}

	req, err := stream.Recv()
	if err != nil {
		return status.Error(codes.Unauthenticated, "missing handshake payload")
	}
	var basic flight.BasicAuth
	if err := proto.Unmarshal(req.GetPayload(), &basic); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid handshake payload: %v", err)
	}
	if !b.validCredential(basic.GetUsername(), basic.GetPassword()) {
		b.logger.Debug("Handshake rejected", "flavor", "payload")
		return status.Error(codes.Unauthenticated, "invalid credentials")
	}

	b.logger.Debug("Handshake accepted", "flavor", "payload")
	return stream.Send(&flight.HandshakeResponse{Payload: []byte(b.issueToken())})
}

// statementServer answers statement queries with the fixture batches.
type statementServer struct {
	flightsql.BaseServer
	backend *Backend
}

func (s *statementServer) GetFlightInfoStatement(ctx context.Context, cmd flightsql.StatementQuery, desc *flight.FlightDescriptor) (*flight.FlightInfo, error) {
	b := s.backend
	if err := sleep(ctx, b.cfg.PlanDelay); err != nil {
		return nil, err
	}

	info := &flight.FlightInfo{
		FlightDescriptor: desc,
		TotalRecords:     b.Rows(),
		TotalBytes:       -1,
	}
	if b.cfg.Schema != nil {
		info.Schema = flight.SerializeSchema(b.cfg.Schema, b.alloc)
	}
	if b.cfg.NoEndpoints {
		return info, nil
	}

	handle := b.addStatement(cmd.GetQuery())
	ticket, err := flightsql.CreateStatementQueryTicket([]byte(handle))
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to create ticket: %v", err)
	}
	if len(b.cfg.TicketFrame) > 0 {
		ticket = append(append([]byte{}, b.cfg.TicketFrame...), ticket...)
	}

	location := []*flight.Location{{Uri: b.Address}}
	if b.cfg.LeadingEmptyEndpoint {
		info.Endpoint = append(info.Endpoint, &flight.FlightEndpoint{
			Ticket:   &flight.Ticket{},
			Location: location,
		})
	}
	info.Endpoint = append(info.Endpoint, &flight.FlightEndpoint{
		Ticket:   &flight.Ticket{Ticket: ticket},
		Location: location,
	})

	b.logger.Debug("Statement planned",
		"query", cmd.GetQuery(),
		"handle", handle,
		"endpoints", len(info.Endpoint),
	)
	return info, nil
}

func (s *statementServer) DoGetStatement(ctx context.Context, ticket flightsql.StatementQueryTicket) (*arrow.Schema, <-chan flight.StreamChunk, error) {
	b := s.backend
	handle := string(ticket.GetStatementHandle())
	if _, ok := b.takeStatement(handle); !ok {
		return nil, nil, status.Errorf(codes.NotFound, "unknown statement handle %q", handle)
	}

	ch := make(chan flight.StreamChunk)
	go func() {
		defer close(ch)
		for i, batch := range b.cfg.Batches {
			if b.cfg.FailAfter > 0 && i == b.cfg.FailAfter {
				send(ctx, ch, flight.StreamChunk{
					Err: status.Error(codes.Internal, "backend failed mid-stream"),
				})
				return
			}
			if err := sleep(ctx, b.cfg.BatchDelay); err != nil {
				return
			}
			// The Flight SQL writer releases every chunk it sends.
			batch.Retain()
			if !send(ctx, ch, flight.StreamChunk{Data: batch}) {
				batch.Release()
				return
			}
		}
	}()

	return b.cfg.Schema, ch, nil
}

func send(ctx context.Context, ch chan<- flight.StreamChunk, chunk flight.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return status.FromContextError(ctx.Err()).Err()
	}
}

// parseBasic decodes "Basic base64(id:secret)", padded or not.
func parseBasic(header string) (id, secret string, ok bool) {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", "", false
	}
	encoded := strings.TrimSpace(header[len(prefix):])
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", "", false
	}
	return strings.Cut(string(raw), ":")
}

func firstValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}

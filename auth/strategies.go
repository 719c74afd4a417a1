package auth

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow/flight"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/proto"
)

// basicTokenAuthenticator sends the credential as a Basic authorization header
// on the Handshake RPC and reads the bearer token the server sets in response.
type basicTokenAuthenticator struct{}

// BasicToken returns the default strategy used by Spice Flight endpoints.
// The token is taken from the response "authorization" header or trailer,
// falling back to the first handshake response payload.
func BasicToken() Authenticator {
	return basicTokenAuthenticator{}
}

func (basicTokenAuthenticator) Name() string { return "basic-token" }

func (basicTokenAuthenticator) Authenticate(ctx context.Context, client HandshakeClient, cred Credential) (string, error) {
	ctx = metadata.AppendToOutgoingContext(ctx, HeaderAuthorization, BasicHeader(cred))

	stream, err := client.Handshake(ctx)
	if err != nil {
		return "", err
	}
	if err := stream.CloseSend(); err != nil {
		return "", err
	}

	header, err := stream.Header()
	if err != nil {
		return "", err
	}

	// Drain the stream so rejections carried in the status are observed.
	var payload []byte
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		if payload == nil {
			payload = resp.GetPayload()
		}
	}

	md := metadata.Join(header, stream.Trailer())
	for _, value := range md.Get(HeaderAuthorization) {
		if token, err := TokenFromAuthorizationHeader(value); err == nil {
			return token, nil
		}
	}
	if len(payload) > 0 {
		return string(payload), nil
	}

	return "", ErrNoToken
}

// payloadHandshakeAuthenticator performs the two-phase Flight handshake:
// BasicAuth request payload in, token payload out.
type payloadHandshakeAuthenticator struct{}

// PayloadHandshake returns the request/response handshake strategy.
func PayloadHandshake() Authenticator {
	return payloadHandshakeAuthenticator{}
}

func (payloadHandshakeAuthenticator) Name() string { return "payload-handshake" }

func (payloadHandshakeAuthenticator) Authenticate(ctx context.Context, client HandshakeClient, cred Credential) (string, error) {
	payload, err := proto.Marshal(&flight.BasicAuth{
		Username: cred.ID,
		Password: cred.Secret,
	})
	if err != nil {
		return "", fmt.Errorf("encode basic auth: %w", err)
	}

	stream, err := client.Handshake(ctx)
	if err != nil {
		return "", err
	}
	if err := stream.Send(&flight.HandshakeRequest{Payload: payload}); err != nil {
		return "", err
	}

	resp, err := stream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrNoToken
		}
		return "", err
	}
	_ = stream.CloseSend()

	token := resp.GetPayload()
	if len(token) == 0 {
		return "", ErrNoToken
	}
	return string(token), nil
}

// headerOnlyAuthenticator skips the handshake; every call carries the raw key.
type headerOnlyAuthenticator struct{}

// HeaderOnly returns the single combined authorization value strategy:
// calls are sent with "authorization: Bearer <id>|<secret>".
func HeaderOnly() Authenticator {
	return headerOnlyAuthenticator{}
}

func (headerOnlyAuthenticator) Name() string { return "header-only" }

func (headerOnlyAuthenticator) Authenticate(context.Context, HandshakeClient, Credential) (string, error) {
	return "", nil
}

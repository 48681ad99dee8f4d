package auth

import (
	"context"
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/kroma-labs/sentinel-mobile/httpclient"
)

// Authentication API headers.
const (
	HeaderAPIKey    = "x-authentication-api-key"
	HeaderSignature = "x-authentication-signature"
	HeaderDeviceID  = "x-authentication-device-id"
)

// AuthenticationClient registers the device with the API.
type AuthenticationClient interface {
	// Authenticate registers the device described by payload, proven by
	// signature, and stores the issued token.
	Authenticate(ctx context.Context, signature string, payload []byte) error
}

// DeviceInfo is the device description sent on registration.
type DeviceInfo struct {
	Brand     string `json:"brand"`
	Model     string `json:"model"`
	OS        string `json:"os"`
	OSVersion string `json:"osVersion"`
	Timestamp int64  `json:"timestamp"`
}

// HTTPAuthenticationClient registers devices through POST api/device.
type HTTPAuthenticationClient struct {
	apiKey   string
	client   *httpclient.Client
	provider TokenProvider
}

var _ AuthenticationClient = (*HTTPAuthenticationClient)(nil)

// NewHTTPAuthenticationClient returns a client authenticating with apiKey.
func NewHTTPAuthenticationClient(
	apiKey string,
	client *httpclient.Client,
	provider TokenProvider,
) *HTTPAuthenticationClient {
	return &HTTPAuthenticationClient{apiKey: apiKey, client: client, provider: provider}
}

// Authenticate implements AuthenticationClient. payload is the JSON
// encoding of a DeviceInfo. A device that already holds a token sends its
// id so the API re-registers it instead of creating a new device. Every
// failure is a KindAuthenticateFailed error.
func (c *HTTPAuthenticationClient) Authenticate(ctx context.Context, signature string, payload []byte) error {
	var info DeviceInfo
	if err := json.Unmarshal(payload, &info); err != nil {
		return NewError(KindAuthenticateFailed, err)
	}

	headers := httpclient.NewHeaders(
		httpclient.Header{Name: HeaderAPIKey, Value: c.apiKey},
		httpclient.Header{Name: HeaderSignature, Value: signature},
	)
	if token, ok := c.provider.Token(ctx); ok && token.ID != "" {
		headers.Add(httpclient.Header{Name: HeaderDeviceID, Value: token.ID})
	}

	token, err := httpclient.Fetch[AuthToken](ctx, c.client, "api/device", http.MethodPost, info, headers)
	if err != nil {
		return NewError(KindAuthenticateFailed, err)
	}
	if err := c.provider.Save(ctx, token); err != nil {
		return NewError(KindAuthenticateFailed, err)
	}

	logger := c.client.Logger()
	logger.Info().Str("device_id", token.ID).Msg("device authenticated")
	return nil
}

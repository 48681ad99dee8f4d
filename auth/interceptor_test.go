package auth

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBearerTokenInterceptor_Intercept(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		token    *AuthToken
		existing string
		want     string
	}{
		{name: "given stored token, then sets bearer header", token: &staleToken, want: "Bearer access-1"},
		{name: "given no token, then leaves request unchanged"},
		{
			name:     "given authorization already set, then keeps it",
			token:    &staleToken,
			existing: "Bearer refresh-1",
			want:     "Bearer refresh-1",
		},
		{
			name:  "given token without access credential, then leaves request unchanged",
			token: &AuthToken{ID: "dev-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, _ := newProvider(t, tt.token)
			req, _ := http.NewRequest(http.MethodGet, testBaseURL+"/api/videos", nil)
			if tt.existing != "" {
				req.Header.Set("Authorization", tt.existing)
			}

			got, err := NewBearerTokenInterceptor(p).Intercept(context.Background(), req, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Header.Get("Authorization"))
		})
	}
}

package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinPath(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		elems   []string
		want    string
		wantErr bool
	}{
		{"project url", "https://abc.supabase.co", []string{"auth/v1/token"}, "https://abc.supabase.co/auth/v1/token", false},
		{"trailing slash on base", "https://abc.supabase.co/", []string{"auth/v1/logout"}, "https://abc.supabase.co/auth/v1/logout", false},
		{"mounted below root", "https://idp.example.com/gotrue", []string{"auth", "v1", "token"}, "https://idp.example.com/gotrue/auth/v1/token", false},
		{"trailing slash kept", "https://idp.example.com", []string{"auth/v1/"}, "https://idp.example.com/auth/v1/", false},
		{"relative base", "/auth", []string{"v1"}, "", true},
		{"invalid base", "://invalid", []string{"v1"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := JoinPath(tt.base, tt.elems...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMustJoinPathPanicsOnRelativeBase(t *testing.T) {
	assert.Panics(t, func() { MustJoinPath("auth", "v1") })
	assert.Equal(t, "http://127.0.0.1:9999/auth/v1/token", MustJoinPath("http://127.0.0.1:9999", "auth/v1/token"))
}

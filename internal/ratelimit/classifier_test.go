package ratelimit_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jobdeck/jobdeck/internal/ratelimit"
)

func TestClassifyPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want ratelimit.Class
	}{
		{"/api/auth/login", ratelimit.ClassAuth},
		{"/api/auth/login/", ratelimit.ClassAuth},
		{"/api/auth/register", ratelimit.ClassAuth},
		{"/api/auth/refresh", ratelimit.ClassAuth},
		{"/login", ratelimit.ClassAuth},
		{"/register", ratelimit.ClassAuth},
		{"/api/ai/cover-letter", ratelimit.ClassAI},
		{"/api/ai/interview-prep/", ratelimit.ClassAI},
		{"/api/ai", ratelimit.ClassAI},
		{"/api/resumes", ratelimit.ClassGeneral},
		{"/api/jobs/42", ratelimit.ClassGeneral},
		{"/", ratelimit.ClassGeneral},
		{"", ratelimit.ClassGeneral},
		{"/api/authx", ratelimit.ClassGeneral},
		{"/api/aix/generate", ratelimit.ClassGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ratelimit.ClassifyPath(tt.path))
		})
	}
}

func TestClientIdentity(t *testing.T) {
	t.Parallel()

	t.Run("prefers authenticated user", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.RemoteAddr = "203.0.113.7:1234"
		r = r.WithContext(ratelimit.WithUserID(r.Context(), "u-42"))

		assert.Equal(t, "user:u-42", ratelimit.ClientIdentity(r))
	})

	t.Run("falls back to forwarded-for", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		r.Header.Set("X-Forwarded-For", "198.51.100.4, 10.0.0.2")

		assert.Equal(t, "ip:198.51.100.4", ratelimit.ClientIdentity(r))
	})

	t.Run("falls back to peer address", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.RemoteAddr = "203.0.113.7:1234"

		assert.Equal(t, "ip:203.0.113.7", ratelimit.ClientIdentity(r))
	})

	t.Run("unknown when nothing resolves", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.RemoteAddr = ""

		assert.Equal(t, "ip:unknown", ratelimit.ClientIdentity(r))
	})

	t.Run("empty user id is ignored", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest("GET", "/api/jobs", nil)
		r.RemoteAddr = "203.0.113.7:1234"
		r = r.WithContext(ratelimit.WithUserID(r.Context(), ""))

		assert.Equal(t, "ip:203.0.113.7", ratelimit.ClientIdentity(r))
	})
}

func TestUserIDFromContext(t *testing.T) {
	t.Parallel()

	_, ok := ratelimit.UserIDFromContext(context.Background())
	assert.False(t, ok)

	ctx := ratelimit.WithUserID(context.Background(), "u-1")
	id, ok := ratelimit.UserIDFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "u-1", id)
}

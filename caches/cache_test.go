package caches

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		url    string
		want   string
	}{
		{
			name:   "plain get",
			method: http.MethodGet,
			url:    "http://app.test/api/students?page=2",
			want:   "GET#http://app.test/api/students?page=2",
		},
		{
			name:   "fragment dropped",
			method: http.MethodGet,
			url:    "http://app.test/dashboard#calendar",
			want:   "GET#http://app.test/dashboard",
		},
		{
			name:   "method upper-cased",
			method: "get",
			url:    "http://app.test/",
			want:   "GET#http://app.test/",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			u, err := url.Parse(tt.url)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, Key(&http.Request{Method: tt.method, URL: u}))
		})
	}
}

package admission_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dropforge/dropforge/internal/admission"
)

func TestCategoryFromPath(t *testing.T) {
	cases := []struct {
		path string
		want admission.Category
	}{
		{"/api/v1/auth/login", admission.CategoryAuth},
		{"/api/v1/auth/register", admission.CategoryAuth},
		{"/api/v1/auth/me", admission.CategoryAuth},
		{"/API/V1/LOGIN", admission.CategoryAuth},
		{"/api/v1/upload", admission.CategoryUpload},
		{"/api/v1/files/upload/chunk", admission.CategoryUpload},
		{"/api/v1/admin/rate-limits/blocked", admission.CategoryAdmin},
		{"/api/v1/files", admission.CategoryAPI},
		{"/", admission.CategoryAPI},
		// Auth match wins over a later admin segment.
		{"/api/v1/auth/admin", admission.CategoryAuth},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, admission.CategoryFromPath(tc.path), "path %s", tc.path)
	}
}

func TestClientIPPrecedence(t *testing.T) {
	newReq := func() *http.Request {
		req, _ := http.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.9:51234"
		return req
	}

	req := newReq()
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1, 10.0.0.2")
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "203.0.113.7", admission.ClientIP(req))

	req = newReq()
	req.Header.Set("X-Real-IP", "198.51.100.4")
	assert.Equal(t, "198.51.100.4", admission.ClientIP(req))

	req = newReq()
	assert.Equal(t, "10.0.0.9", admission.ClientIP(req))

	req = newReq()
	req.RemoteAddr = ""
	assert.Equal(t, "unknown", admission.ClientIP(req))
}

func TestSubjectKeysCoversAllSeries(t *testing.T) {
	keys := admission.SubjectKeys("1.2.3.4")
	assert.Len(t, keys, 8)
	assert.Contains(t, keys, "ratelimit:auth:1.2.3.4:1m")
	assert.Contains(t, keys, "ratelimit:auth:1.2.3.4:1h")
	assert.Contains(t, keys, "ratelimit:api:1.2.3.4:1m")
	assert.Contains(t, keys, "ratelimit:upload:1.2.3.4:1h")
	assert.Contains(t, keys, "ratelimit:admin:1.2.3.4:1m")
}

func TestRateKeyString(t *testing.T) {
	key := admission.RateKey{
		Category: admission.CategoryUpload,
		Subject:  "1.2.3.4",
		Window:   admission.WindowLong,
	}
	assert.Equal(t, "ratelimit:upload:1.2.3.4:1h", key.String())
}

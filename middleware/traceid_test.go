package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func traceOf(t *testing.T, header string) (body, echoed string) {
	t.Helper()
	r := gin.New()
	r.Use(TraceID())
	r.GET("/trace", func(c *gin.Context) {
		c.String(http.StatusOK, GetTraceID(c))
	})
	req := httptest.NewRequest(http.MethodGet, "/trace", nil)
	if header != "" {
		req.Header.Set(TraceIDHeader, header)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String(), w.Header().Get(TraceIDHeader)
}

func TestTraceID_Generated(t *testing.T) {
	id, echoed := traceOf(t, "")
	_, err := uuid.Parse(id)
	assert.NoError(t, err)
	assert.Equal(t, id, echoed)

	other, _ := traceOf(t, "")
	assert.NotEqual(t, id, other)
}

func TestTraceID_ProvidedUUIDKept(t *testing.T) {
	in := "6F9619FF-8B86-D011-B42D-00C04FC964FF"
	id, echoed := traceOf(t, in)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", id)
	assert.Equal(t, id, echoed)
}

func TestTraceID_ProvidedGarbageReplaced(t *testing.T) {
	id, _ := traceOf(t, "my-custom-trace\nforged log line")
	assert.NotContains(t, id, "custom")
	assert.Len(t, id, 36)
}

func TestGetTraceID_Missing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, "", GetTraceID(c))
}

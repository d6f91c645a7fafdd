package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/course-optimizer/pkg/errors"
	"github.com/noah-isme/course-optimizer/pkg/middleware/requestid"
)

type body struct {
	Data  map[string]string `json:"data"`
	Error *appErrors.Error  `json:"error"`
	Meta  map[string]string `json:"meta"`
}

func call(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, body) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(requestid.Middleware())
	r.GET("/", h)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(requestid.Header, "req-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return rec, b
}

func TestAccepted(t *testing.T) {
	rec, b := call(t, func(c *gin.Context) { Accepted(c, map[string]string{"id": "run-1"}) })
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "run-1", b.Data["id"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
}

func TestErrorHidesInternalCause(t *testing.T) {
	rec, b := call(t, func(c *gin.Context) { Error(c, errors.New("pq: connection refused")) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	require.NotNil(t, b.Error)
	assert.Equal(t, appErrors.ErrInternal.Code, b.Error.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
	assert.Equal(t, "req-1", b.Meta["request_id"])
}

func TestErrorKeepsTypedStatus(t *testing.T) {
	rec, b := call(t, func(c *gin.Context) { Error(c, appErrors.Clone(appErrors.ErrRunNotFinished, "")) })
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "RUN_NOT_FINISHED", b.Error.Code)
}

package handlers

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/lattice-im/lattice/internal/api/middleware"
	"github.com/lattice-im/lattice/internal/auth"
	"github.com/lattice-im/lattice/internal/crypto"
	"github.com/lattice-im/lattice/internal/database"
	"github.com/lattice-im/lattice/internal/filter"
)

func newTestRouter(t *testing.T) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	jwtManager, err := crypto.NewJWTManager("test-secret")
	require.NoError(t, err)
	token, err := jwtManager.CreateToken("@alice:test", "DEVICE1", 1, false)
	require.NoError(t, err)

	fh := NewFilterHandler(filter.NewStore(db.DB), 100)

	router := gin.New()
	v1 := router.Group("/v1", middleware.AuthMiddleware(auth.NewTokenAuth(jwtManager)))
	v1.GET("/whoami", GetWhoAmI)
	v1.POST("/user/filter", fh.PostFilter)
	v1.GET("/user/filter/:id", fh.GetFilter)

	return router, token
}

func doRequest(router *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestFilterPostGet(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/user/filter", token,
		`{"room":{"timeline":{"limit":5}}}`)
	require.Equal(t, http.StatusOK, w.Code)
	id := gjson.Get(w.Body.String(), "filter_id").String()
	require.NotEmpty(t, id)

	w = doRequest(router, http.MethodGet, "/v1/user/filter/"+id, token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"room":{"timeline":{"limit":5}}}`, w.Body.String())
}

func TestFilterPostInvalid(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/user/filter", token, `{"bogus":{}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, "M_BAD_JSON", gjson.Get(w.Body.String(), "errcode").String())
}

func TestFilterGetNotFound(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/user/filter/999", token, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, "M_NOT_FOUND", gjson.Get(w.Body.String(), "errcode").String())
}

func TestFilterRequiresAuth(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doRequest(router, http.MethodPost, "/v1/user/filter", "", `{}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestWhoAmI(t *testing.T) {
	router, token := newTestRouter(t)

	w := doRequest(router, http.MethodGet, "/v1/whoami", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "@alice:test", gjson.Get(w.Body.String(), "user_id").String())
	require.Equal(t, "DEVICE1", gjson.Get(w.Body.String(), "device_id").String())
}

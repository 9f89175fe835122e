package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/auth"
	"storefront/internal/middleware"
)

const testSecret = "handlers-test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

// principals is a token-subject registry standing in for the users
// collection.
type principals struct {
	mu    sync.Mutex
	known map[primitive.ObjectID]auth.Principal
}

func newPrincipals() *principals {
	return &principals{known: make(map[primitive.ObjectID]auth.Principal)}
}

func (p *principals) add(isAdmin bool) auth.Principal {
	p.mu.Lock()
	defer p.mu.Unlock()
	principal := auth.Principal{ID: primitive.NewObjectID(), IsAdmin: isAdmin}
	p.known[principal.ID] = principal
	return principal
}

func (p *principals) load(_ context.Context, id primitive.ObjectID) (auth.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	principal, ok := p.known[id]
	if !ok {
		return auth.Principal{}, errors.New("user not found")
	}
	return principal, nil
}

func newTestEngine() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestLogger(zap.NewNop()), middleware.Recovery())
	return r
}

func bearer(t *testing.T, p auth.Principal) string {
	t.Helper()
	token, err := auth.IssueToken(p.ID, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func doJSON(t *testing.T, r http.Handler, method, target, authorization string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

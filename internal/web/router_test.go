package web

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"hoststat/internal/auth"
	"hoststat/internal/netx"
)

func TestNewHandler_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	h := NewHandler(newTestService(okSnapshots()), nil, nil, zerolog.New(&buf))

	assert.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/").Code)
	assert.Contains(t, buf.String(), `"path":"/"`)
	assert.Contains(t, buf.String(), `"status":200`)

	assert.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/socket.io/").Code, "stream disabled")
}

func TestNewHandler_BasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	users := auth.Users{"ops": string(hash)}
	h := NewHandler(newTestService(okSnapshots()), nil, users, zerolog.Nop())

	for _, path := range []string{"/", "/info", "/metrics"} {
		assert.Equal(t, http.StatusUnauthorized, serve(t, h, http.MethodGet, path).Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("ops:pw")))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewHandler_Stream(t *testing.T) {
	svc := newTestService(okSnapshots())
	sock := netx.NewSocket()
	defer sock.Close()
	stream := NewStreamService(svc, 5*time.Second, time.Second, zerolog.Nop())
	defer stream.Close()
	stream.Register(sock.AddNamespace(StreamNamespace), nil)

	srv := httptest.NewServer(NewHandler(svc, sock, nil, zerolog.Nop()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + netx.SocketPath + "?EIO=4&transport=polling")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"sid"`)
}

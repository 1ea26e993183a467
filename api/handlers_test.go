package api

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sigforge/sigforge/internal/types"
)

func newTestServer() *Server {
	// A nil statsd client is a no-op client; the convert handlers
	// touch nothing else on the server.
	return &Server{logger: logrus.New()}
}

func postJSON(t *testing.T, s *Server, handler echo.HandlerFunc, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	require.NoError(t, handler(e.NewContext(req, rec)))
	return rec
}

func TestConvertDERToRawEndpoint(t *testing.T) {
	s := newTestServer()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	digest := sha256.Sum256([]byte("payload"))
	der, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	require.NoError(t, err)

	body := fmt.Sprintf(`{"curve":"P-256","signature":"%s"}`, base64.StdEncoding.EncodeToString(der))
	rec := postJSON(t, s, s.ConvertDERToRaw, "/convert/der-to-raw", body)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp types.ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	raw, err := base64.StdEncoding.DecodeString(resp.Signature)
	require.NoError(t, err)
	assert.Len(t, raw, 64)

	// And back again through the inverse endpoint.
	body = fmt.Sprintf(`{"curve":"P-256","signature":"%s"}`, resp.Signature)
	rec = postJSON(t, s, s.ConvertRawToDER, "/convert/raw-to-der", body)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestConvertDERToRawEndpointRejectsBadInput(t *testing.T) {
	s := newTestServer()

	testCases := []struct {
		name string
		body string
	}{
		{"unknown curve", `{"curve":"P-999","signature":"MAA="}`},
		{"not base64", `{"curve":"P-256","signature":"!!!"}`},
		{"truncated der", fmt.Sprintf(`{"curve":"P-256","signature":"%s"}`, base64.StdEncoding.EncodeToString([]byte{0x30, 0x44, 0x02}))},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := postJSON(t, s, s.ConvertDERToRaw, "/convert/der-to-raw", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestConvertRawToDERRejectsWrongLength(t *testing.T) {
	s := newTestServer()

	body := fmt.Sprintf(`{"curve":"P-256","signature":"%s"}`, base64.StdEncoding.EncodeToString(make([]byte, 96)))
	rec := postJSON(t, s, s.ConvertRawToDER, "/convert/raw-to-der", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

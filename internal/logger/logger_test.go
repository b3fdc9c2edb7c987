package logger

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iurnickita/importcredit/internal/logger/config"
)

func TestNewZapLog(t *testing.T) {
	zaplog, err := NewZapLog(config.Config{})
	require.NoError(t, err)
	require.True(t, zaplog.Core().Enabled(zapcore.InfoLevel))
	require.False(t, zaplog.Core().Enabled(zapcore.DebugLevel))

	_, err = NewZapLog(config.Config{LogLevel: "loud"})
	require.Error(t, err)
}

func TestRequestLogMdlw(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	zaplog := zap.New(core)

	var got string
	h := RequestLogMdlw(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"imp-1"}`))
	}, zaplog)

	req := httptest.NewRequest(http.MethodPost, "/api/imports", strings.NewReader(strings.Repeat("x", maxBodyLog+10)))
	req.Header.Set("Idempotency-Key", "req-1")
	h(httptest.NewRecorder(), req)

	// the handler still sees the whole body
	require.Len(t, got, maxBodyLog+10)

	entries := logs.All()
	require.Len(t, entries, 2)
	in := entries[0].ContextMap()
	require.Equal(t, "req-1", in["request_id"])
	require.Len(t, in["body"], maxBodyLog+3)

	out := entries[1].ContextMap()
	require.Equal(t, int64(http.StatusCreated), out["code"])
	require.Equal(t, `{"id":"imp-1"}`, out["body"])
	require.Equal(t, int64(14), out["length"])
}

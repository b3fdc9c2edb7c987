package logger

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/iurnickita/importcredit/internal/logger/config"
)

// maxBodyLog bounds how much of a body goes into one log record.
const maxBodyLog = 2048

func NewZapLog(cfg config.Config) (*zap.Logger, error) {
	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	// преобразуем текстовый уровень логирования в zap.AtomicLevel
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zapcfg := zap.NewProductionConfig()
	zapcfg.Level = lvl
	return zapcfg.Build()
}

func clip(b []byte) string {
	if len(b) > maxBodyLog {
		return string(b[:maxBodyLog]) + "..."
	}
	return string(b)
}

// middleware-логер для входящих HTTP-запросов.
func RequestLogMdlw(h http.HandlerFunc, zaplog *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bodyBytes, _ := io.ReadAll(r.Body)
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		fields := []zap.Field{
			zap.String("path", r.URL.Path),
			zap.String("method", r.Method),
			zap.String("body", clip(bodyBytes)),
		}
		if key := r.Header.Get("Idempotency-Key"); key != "" {
			fields = append(fields, zap.String("request_id", key))
		}
		zaplog.Info("got incoming HTTP request", fields...)

		wl := NewResponseWriterLogger(w)

		handlerStart := time.Now()
		h(wl, r)

		zaplog.Info("send HTTP response",
			zap.String("path", r.URL.Path),
			zap.Int("code", wl.statusCode),
			zap.String("body", clip(wl.body)),
			zap.Int("length", wl.length),
			zap.Duration("duration", time.Since(handlerStart)),
		)
	}
}

type responseWriterLogger struct {
	http.ResponseWriter
	statusCode int
	length     int
	body       []byte
}

func NewResponseWriterLogger(w http.ResponseWriter) *responseWriterLogger {
	return &responseWriterLogger{w, http.StatusOK, 0, []byte{}}
}

func (wl *responseWriterLogger) WriteHeader(code int) {
	wl.statusCode = code
	wl.ResponseWriter.WriteHeader(code)
}

func (wl *responseWriterLogger) Write(b []byte) (n int, err error) {
	wl.body = append(wl.body, b...)
	n, err = wl.ResponseWriter.Write(b)
	wl.length += n
	return
}

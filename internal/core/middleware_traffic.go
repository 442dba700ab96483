package core

import (
	"bytes"
	"log/slog"
	"net/http"

	"profilehub/internal/types"
)

// ResponseCapturer buffers status, headers and body so the idempotency
// middleware can store the response before it reaches the client.
type ResponseCapturer struct {
	w          http.ResponseWriter
	header     http.Header
	statusCode int
	body       bytes.Buffer
}

func newResponseCapturer(w http.ResponseWriter) *ResponseCapturer {
	return &ResponseCapturer{
		w:          w,
		header:     w.Header().Clone(),
		statusCode: http.StatusOK,
	}
}

func (rc *ResponseCapturer) Header() http.Header { return rc.header }

func (rc *ResponseCapturer) WriteHeader(code int) { rc.statusCode = code }

func (rc *ResponseCapturer) Write(b []byte) (int, error) { return rc.body.Write(b) }

// Flush copies the captured response to the underlying writer. Call it once.
func (rc *ResponseCapturer) Flush() {
	dst := rc.w.Header()
	for k, v := range rc.header {
		dst[k] = v
	}
	rc.w.WriteHeader(rc.statusCode)
	_, _ = rc.w.Write(rc.body.Bytes())
}

func (rc *ResponseCapturer) StatusCode() int { return rc.statusCode }

func (rc *ResponseCapturer) Body() []byte { return rc.body.Bytes() }

// IdempotencyMiddleware makes keyed POST requests execute at most once per
// actor. A completed key replays the stored response with
// X-Idempotent-Replayed: true, a key still in flight is 409, and a key whose
// first attempt failed with 5xx is retried. Responses below 500 are stored,
// client errors included.
//
// Store errors fail open. Requests without the Idempotency-Key header, an
// Actor or a configured store pass through.
func (s *Server) IdempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if s.Idempotency == nil || r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		actor, ok := types.GetActor(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		ctx := r.Context()
		log := s.Logger.With(slog.String("idempotency_key", key), slog.String("user_id", actor.ID))

		record, err := s.Idempotency.Get(ctx, key, actor.ID)
		if err != nil {
			log.ErrorContext(ctx, "idempotency store get error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		if record != nil {
			switch record.Status {
			case IdempotencyStatusCompleted:
				if record.Path != r.URL.Path {
					Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationFailed,
						"idempotency key was used for a different endpoint", nil,
						map[string]any{"path": record.Path}))
					return
				}
				log.InfoContext(ctx, "idempotency key hit, replaying response",
					slog.Int("cached_status", record.ResponseCode))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotent-Replayed", "true")
				w.WriteHeader(record.ResponseCode)
				_, _ = w.Write(record.ResponseBody)
				return
			case IdempotencyStatusProcessing:
				log.WarnContext(ctx, "idempotency key conflict, request in progress")
				Error(w, r, types.NewAppError(types.ErrCodeConflictIdempotency,
					"a request with this idempotency key is currently being processed", nil))
				return
			case IdempotencyStatusFailed:
				log.InfoContext(ctx, "idempotency key previously failed, retrying")
			}
		}

		if err := s.Idempotency.Create(ctx, key, actor.ID, r.URL.Path); err != nil {
			if types.HasCode(err, types.ErrCodeConflictIdempotency) {
				Error(w, r, err)
				return
			}
			log.ErrorContext(ctx, "idempotency store create error", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}

		capturer := newResponseCapturer(w)
		next.ServeHTTP(capturer, r)

		if status := capturer.StatusCode(); status < http.StatusInternalServerError {
			if err := s.Idempotency.Complete(ctx, key, actor.ID, status, capturer.Body()); err != nil {
				log.ErrorContext(ctx, "idempotency store complete error", slog.String("error", err.Error()))
			}
		} else if err := s.Idempotency.Fail(ctx, key, actor.ID); err != nil {
			log.ErrorContext(ctx, "idempotency store fail error", slog.String("error", err.Error()))
		}

		capturer.Flush()
	})
}

package httpx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// scriptRunner counts script runs per key the way the fixed window script
// does, or fails every call with err.
type scriptRunner struct {
	redis.Scripter
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newScriptRunner() *scriptRunner {
	return &scriptRunner{counts: map[string]int64{}}
}

func (s *scriptRunner) EvalSha(ctx context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	cmd := redis.NewCmd(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		cmd.SetErr(s.err)
		return cmd
	}
	s.counts[keys[0]]++
	cmd.SetVal(s.counts[keys[0]])
	return cmd
}

func (s *scriptRunner) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return s.EvalSha(ctx, "", keys, args...)
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func hit(h http.Handler, remote string) int {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	return rw.Code
}

func TestRedisRateLimiterRejectsOverLimit(t *testing.T) {
	rdb := newScriptRunner()
	h := NewRedisRateLimiter(rdb, 2, time.Minute, "test").Middleware(quietLogger, false)(okHandler())

	var codes []int
	for i := 0; i < 3; i++ {
		codes = append(codes, hit(h, "10.0.0.1:5555"))
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes %v", codes)
	}
	if code := hit(h, "10.0.0.2:5555"); code != http.StatusOK {
		t.Fatalf("expected separate window per client, got %d", code)
	}
	if rdb.counts["test:10.0.0.1"] != 3 || rdb.counts["test:10.0.0.2"] != 1 {
		t.Fatalf("unexpected keys %v", rdb.counts)
	}
}

func TestRedisRateLimiterFailClosed(t *testing.T) {
	rdb := newScriptRunner()
	rdb.err = errors.New("dial tcp: connection refused")
	var reached bool
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { reached = true })
	h := NewRedisRateLimiter(rdb, 2, time.Minute, "").Middleware(quietLogger, false)(next)

	if code := hit(h, "10.0.0.1:5555"); code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", code)
	}
	if reached {
		t.Fatal("handler should not run when the limiter is unavailable")
	}
}

func TestRedisRateLimiterFailOpen(t *testing.T) {
	rdb := newScriptRunner()
	rdb.err = errors.New("dial tcp: connection refused")
	h := NewRedisRateLimiter(rdb, 1, time.Minute, "").Middleware(quietLogger, true)(okHandler())

	for i := 0; i < 3; i++ {
		if code := hit(h, "10.0.0.1:5555"); code != http.StatusOK {
			t.Fatalf("request %d: expected pass-through, got %d", i, code)
		}
	}
}

type pingStub struct{ err error }

func (p pingStub) Ping(ctx context.Context) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if p.err != nil {
		cmd.SetErr(p.err)
	} else {
		cmd.SetVal("PONG")
	}
	return cmd
}

func TestRedisReadyCheck(t *testing.T) {
	ctx := context.Background()
	if err := RedisReadyCheck(pingStub{})(ctx); err != nil {
		t.Fatalf("expected ready, got %v", err)
	}
	down := errors.New("connection refused")
	if err := RedisReadyCheck(pingStub{err: down})(ctx); !errors.Is(err, down) {
		t.Fatalf("expected ping error, got %v", err)
	}
}

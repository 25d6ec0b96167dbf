package tracing

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/GriffinCanCode/methodprobe/internal/tree"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// HTTPClass is the class name HTTP requests are recorded under.
const HTTPClass = "HTTP"

// RequestIDHeader names the tracker when a request carries it.
const RequestIDHeader = "X-Request-ID"

// StatusError is recorded for responses with a 5xx status and no handler
// error.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http status %d %s", e.Code, http.StatusText(e.Code))
}

// HTTPMiddleware creates Gin middleware that runs every request inside its
// own tracker.
func HTTPMiddleware(m *tree.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		t := m.NewTracker(trackerName("http-", c.GetHeader(RequestIDHeader)))

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := c.Request.Method + " " + route

		t.OnEnter(HTTPClass, method, c.Request.URL.String())
		c.Request = c.Request.WithContext(tree.WithTracker(c.Request.Context(), t))

		defer func() {
			if r := recover(); r != nil {
				t.OnExit(HTTPClass, method, fmt.Errorf("panic: %v", r))
				panic(r)
			}
			t.OnExit(HTTPClass, method, requestError(c))
		}()

		c.Next()
	}
}

func requestError(c *gin.Context) error {
	if err := c.Errors.Last(); err != nil {
		return err.Err
	}
	if status := c.Writer.Status(); status >= http.StatusInternalServerError {
		return &StatusError{Code: status}
	}
	return nil
}

// UnaryServerInterceptor creates a gRPC unary interceptor that runs every
// call inside its own tracker.
func UnaryServerInterceptor(m *tree.Manager) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		t := m.NewTracker(trackerName("grpc-", incomingRequestID(ctx)))
		class, method := SplitFullMethod(info.FullMethod)

		var resp interface{}
		err := t.Do(class, method, func() (err error) {
			resp, err = handler(tree.WithTracker(ctx, t), req)
			return err
		}, req)
		return resp, err
	}
}

// StreamServerInterceptor creates a gRPC stream interceptor that runs every
// stream inside its own tracker.
func StreamServerInterceptor(m *tree.Manager) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx := ss.Context()
		t := m.NewTracker(trackerName("grpc-", incomingRequestID(ctx)))
		class, method := SplitFullMethod(info.FullMethod)

		wrapped := &trackedServerStream{
			ServerStream: ss,
			ctx:          tree.WithTracker(ctx, t),
		}
		return t.Do(class, method, func() error {
			return handler(srv, wrapped)
		})
	}
}

// trackedServerStream carries the tracker in its context.
type trackedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *trackedServerStream) Context() context.Context {
	return s.ctx
}

// SplitFullMethod turns "/pkg.Service/Method" into ("pkg.Service", "Method").
func SplitFullMethod(fullMethod string) (class, method string) {
	name := strings.TrimPrefix(fullMethod, "/")
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		return name[:i], name[i+1:]
	}
	return "grpc", name
}

func incomingRequestID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if vals := md.Get(strings.ToLower(RequestIDHeader)); len(vals) > 0 {
		return vals[0]
	}
	return ""
}

func trackerName(prefix, requestID string) string {
	if requestID == "" {
		requestID = uuid.NewString()[:8]
	}
	return prefix + requestID
}

// Call runs fn as class.method on the tracker carried by ctx. Without a
// tracker fn simply runs.
func Call(ctx context.Context, class, method string, fn func(ctx context.Context) error, args ...any) error {
	t := tree.FromContext(ctx)
	if t == nil {
		return fn(ctx)
	}
	return t.Do(class, method, func() error { return fn(ctx) }, args...)
}

package endpoints

import (
	"net/http"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"connectrpc.com/grpcreflect"
)

// ServiceName is reported by the health service while races can be created
const ServiceName = "botrace.v1.RaceService"

// RegisterHealth adds the gRPC health and reflection services to mux.
// The returned checker is used to report the serving status.
//
//nolint:whitespace // can't make both editor and linter happy
func RegisterHealth(
	mux *http.ServeMux, interceptors ...connect.Interceptor,
) *grpchealth.StaticChecker {
	checker := grpchealth.NewStaticChecker(ServiceName)
	opts := connect.WithInterceptors(interceptors...)
	mux.Handle(grpchealth.NewHandler(checker, opts))

	reflector := grpcreflect.NewStaticReflector(grpchealth.HealthV1ServiceName)
	mux.Handle(grpcreflect.NewHandlerV1(reflector, opts))
	mux.Handle(grpcreflect.NewHandlerV1Alpha(reflector, opts))
	return checker
}

package rpc

import (
	"context"
	"errors"

	"github.com/vyrodovalexey/avaguard/internal/correlation"
)

// Built-in procedure names.
const (
	ProcPing    = "system.ping"
	ProcVersion = "system.version"
	ProcWhoAmI  = "system.whoami"
	ProcEcho    = "system.echo"
)

// Identity describes the request scope of the caller.
type Identity struct {
	CorrelationID string `json:"correlationId"`
	Transport     string `json:"transport"`
}

// RegisterSystemProcedures registers the diagnostic procedures. Ping and
// version are public; the others require a proxy token.
func RegisterSystemProcedures(r *Router, version string) error {
	return errors.Join(
		r.Register(ProcPing, func(context.Context, any) (any, error) {
			return "pong", nil
		}, Public()),
		r.Register(ProcVersion, func(context.Context, any) (any, error) {
			return version, nil
		}, Public()),
		r.Register(ProcWhoAmI, whoAmI),
		r.Register(ProcEcho, func(_ context.Context, input any) (any, error) {
			return input, nil
		}),
	)
}

func whoAmI(ctx context.Context, _ any) (any, error) {
	rc, ok := correlation.FromContext(ctx)
	if !ok {
		return Identity{}, nil
	}
	return Identity{
		CorrelationID: rc.ID(),
		Transport:     string(rc.Transport()),
	}, nil
}

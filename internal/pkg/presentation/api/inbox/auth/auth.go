package auth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/diwise/device-telemetry/pkg/telemetry/errors"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/open-policy-agent/opa/rego"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("device-telemetry/inbox/authz")

type Enticator interface {
	CheckAccess(ctx context.Context, r *http.Request, interfaceName string) error
}

type enticatorImpl struct {
	preparedQuery rego.PreparedEvalQuery
}

// NewAuthenticator prepares the rego policies read from policies. The policy
// module must define data.example.authz.allow, which evaluates to an object
// when access is granted.
func NewAuthenticator(ctx context.Context, policies io.Reader) (Enticator, error) {

	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %s", err.Error())
	}

	impl := &enticatorImpl{}

	impl.preparedQuery, err = rego.New(
		rego.Query("x = data.example.authz.allow"),
		rego.Module("inbox.rego", string(module)),
	).PrepareForEval(ctx)

	if err != nil {
		return nil, err
	}

	return impl, nil
}

func (e *enticatorImpl) CheckAccess(ctx context.Context, r *http.Request, interfaceName string) error {
	var err error

	_, span := tracer.Start(ctx, "check-auth")
	defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()

	token := r.Header.Get("Authorization")
	token, _ = strings.CutPrefix(token, "Bearer ")

	input := map[string]any{
		"method":    r.Method,
		"path":      strings.Split(strings.Trim(r.URL.Path, "/"), "/"),
		"token":     token,
		"interface": interfaceName,
	}

	results, err := e.preparedQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		err = fmt.Errorf("opa eval failed: %w", err)
		return err
	}

	if len(results) == 0 {
		err = errors.NewUnauthorizedError("opa query could not be satisfied")
		return err
	}

	binding := results[0].Bindings["x"]

	// a denied request yields a single false
	allowed, ok := binding.(bool)
	if ok && !allowed {
		err = errors.NewUnauthorizedError("authorization failed")
		return err
	}

	if _, ok = binding.(map[string]any); !ok {
		err = fmt.Errorf("opa error: unexpected result type %T", binding)
		return err
	}

	return nil
}

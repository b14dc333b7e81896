package orchestrator

import (
	"context"

	"github.com/d-o-hub/memcore/internal/audit"
	"github.com/d-o-hub/memcore/internal/sandbox"
)

// ExecuteCode runs code in the sandbox on the agent's behalf and records
// the invocation in the audit trail regardless of outcome.
func (o *Orchestrator) ExecuteCode(ctx context.Context, code string) (*sandbox.Result, error) {
	result, err := o.sandbox.Execute(ctx, code)

	fields := map[string]interface{}{"code_bytes": len(code)}
	if result != nil {
		fields["status"] = string(result.Status)
		fields["duration_ms"] = result.Duration.Milliseconds()
		fields["truncated"] = result.Truncated
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	o.audit.Record(audit.KindSandboxInvoked, fields)

	return result, err
}

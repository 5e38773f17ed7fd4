package service

import "context"

// Auditor receives best-effort audit entries for proposal lifecycle events.
type Auditor interface {
	Audit(ctx context.Context, action, level string, details map[string]any)
}

func audit(ctx context.Context, a Auditor, action string, details map[string]any) {
	if a == nil {
		return
	}
	a.Audit(ctx, action, "info", details)
}

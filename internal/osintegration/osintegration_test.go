package osintegration

import (
	"context"
	"testing"
)

func TestNoOpSatisfiesIntegration(t *testing.T) {
	var integ Integration = NoOp{}
	ctx := context.Background()

	if err := integ.ApplySystemProxy(ctx, "127.0.0.1", 8080); err != nil {
		t.Errorf("ApplySystemProxy() error = %v, want nil", err)
	}

	host, port, enabled, err := integ.DetectSystemProxy(ctx)
	if err != nil || host != "" || port != 0 || enabled {
		t.Errorf("DetectSystemProxy() = (%q, %d, %v, %v), want zero values", host, port, enabled, err)
	}

	if err := integ.InstallRootCA(ctx, []byte("not a real cert")); err != nil {
		t.Errorf("InstallRootCA() error = %v, want nil", err)
	}
}

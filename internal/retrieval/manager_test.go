package retrieval

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/registry"
)

func TestNewService_ClosesCleanlyWithNoConnections(t *testing.T) {
	svc := NewService(registry.New(t.TempDir()), http.DefaultClient)
	assert.NoError(t, svc.Close())
}

func TestService_ListTools_UnknownServerErrors(t *testing.T) {
	svc := NewService(registry.New(t.TempDir()), http.DefaultClient)
	_, err := svc.ListTools(context.Background(), "does-not-exist")
	require.Error(t, err)
}

func TestService_CallTool_UnknownServerErrors(t *testing.T) {
	svc := NewService(registry.New(t.TempDir()), http.DefaultClient)
	_, err := svc.CallTool(context.Background(), "does-not-exist", "tool", nil)
	require.Error(t, err)
}

func TestScoped_DelegatesListToolsToService(t *testing.T) {
	svc := NewService(registry.New(t.TempDir()), http.DefaultClient)
	scoped := NewScoped(svc)

	_, errSvc := svc.ListTools(context.Background(), "missing")
	_, errScoped := scoped.ListTools(context.Background(), "missing")
	require.Error(t, errSvc)
	require.Error(t, errScoped)
	assert.Equal(t, errSvc.Error(), errScoped.Error())
}

func TestScoped_DoesNotImplementIOCloser(t *testing.T) {
	svc := NewService(registry.New(t.TempDir()), http.DefaultClient)
	scoped := NewScoped(svc)

	type closer interface{ Close() error }
	_, ok := any(scoped).(closer)
	assert.False(t, ok, "retrieval.Scoped must not implement io.Closer: Coordinator.Close type-asserts Retrieval to io.Closer and must not tear down the shared Service on a per-request basis")
}

package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compresr/llm-gateway/internal/model"
)

func TestInvokeCommand_AppliesEnvOverrides(t *testing.T) {
	route := &model.ProcessRoute{
		Invoke: model.RouteInvoke{
			Kind:    model.InvokeCommand,
			Command: "/bin/sh",
			Args:    []string{"-c", `printf '{"value":"%s"}' "$GREETING"`},
			Env:     map[string]string{"GREETING": "hello-from-route"},
		},
	}
	d := &Dispatcher{}
	result, err := d.invokeCommand(context.Background(), route, ToolContext{ToolName: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "hello-from-route", result.(map[string]any)["value"])
}

func TestInvokeCommand_OverridesWinOverInheritedEnv(t *testing.T) {
	t.Setenv("GREETING", "inherited")
	route := &model.ProcessRoute{
		Invoke: model.RouteInvoke{
			Kind:    model.InvokeCommand,
			Command: "/bin/sh",
			Args:    []string{"-c", `printf '{"value":"%s"}' "$GREETING"`},
			Env:     map[string]string{"GREETING": "overridden"},
		},
	}
	d := &Dispatcher{}
	result, err := d.invokeCommand(context.Background(), route, ToolContext{ToolName: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "overridden", result.(map[string]any)["value"])
}

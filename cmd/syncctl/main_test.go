package main

import (
	"bytes"
	"testing"

	"commerce-sync/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmdRegistersSubcommands(t *testing.T) {
	root := newRootCmd()

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"migrate", "sync", "tick", "test-connection"})
}

func TestSyncRequiresTenant(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"sync"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"tenant"`)
}

func TestTestConnectionRequiresTenant(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"test-connection"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"tenant"`)
}

func TestValidateEntity(t *testing.T) {
	for _, ok := range []string{"", "all", "customers", "orders", "products"} {
		assert.NoError(t, validateEntity(ok), ok)
	}
	assert.ErrorIs(t, validateEntity("invoices"), service.ErrUnknownEntity)
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printJSON(&buf, &service.SyncResults{}))
	assert.JSONEq(t, `{}`, buf.String())
}

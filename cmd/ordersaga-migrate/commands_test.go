package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/migrations"
)

func TestSchemaFor(t *testing.T) {
	for _, service := range []string{"order", "billing", "notification"} {
		schema, err := schemaFor(service)
		require.NoError(t, err, service)

		available, err := migrations.NewMigrator(nil, schema, ".").Available()
		require.NoError(t, err, service)
		assert.NotEmpty(t, available, service)
	}

	_, err := schemaFor("inventory")
	assert.Error(t, err)
}

func TestStepsArg(t *testing.T) {
	n, err := stepsArg(nil, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = stepsArg([]string{"3"}, 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = stepsArg([]string{"-2"}, 1)
	assert.Error(t, err)
	_, err = stepsArg([]string{"many"}, 1)
	assert.Error(t, err)
}

func TestCreateCommand(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"create", "add_order_notes", "--service", "order", "--dir", dir})
	require.NoError(t, cmd.Execute())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), "_add_order_notes.sql"))
	assert.Contains(t, out.String(), filepath.Join(dir, entries[0].Name()))

	content, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(content), "-- +goose Up")
}

func TestCreateCommand_UnknownService(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"create", "x", "--service", "inventory", "--dir", t.TempDir()})
	assert.Error(t, cmd.Execute())
}

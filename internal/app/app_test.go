package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storm-platform/storm-go/internal/app"
	"github.com/storm-platform/storm-go/internal/config"
	"github.com/storm-platform/storm-go/internal/stormtest"
	"github.com/storm-platform/storm-go/sdk/go/model"
)

func TestResolveConfigRequiresURLWithoutFile(t *testing.T) {
	_, err := app.ResolveConfig(t.TempDir(), app.Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--url")
}

func TestResolveConfigAppliesOverrides(t *testing.T) {
	ws := t.TempDir()
	cfg := config.Default("https://storm.example.org/api")
	cfg.Service.Token = "file-token"
	cfg.Project.ID = "p1"
	require.NoError(t, cfg.Write(ws))

	got, err := app.ResolveConfig(ws, app.Overrides{Token: "flag-token", Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "https://storm.example.org/api", got.Service.URL)
	assert.Equal(t, "flag-token", got.Service.Token)
	assert.Equal(t, 5*time.Second, got.Service.Timeout)
	id, err := app.ProjectID(got)
	require.NoError(t, err)
	assert.Equal(t, "p1", id)

	_, err = app.ResolveConfig(ws, app.Overrides{URL: "ftp://nope"})
	assert.Error(t, err)
}

func TestProjectIDMissing(t *testing.T) {
	_, err := app.ProjectID(config.Default("http://localhost"))
	assert.Error(t, err)
}

func TestClientAndEngine(t *testing.T) {
	srv := stormtest.New(t)
	srv.AddProject("p1", "Climate")
	srv.AddGraph("pipelines", "p1", "g1", "c1")

	cfg, err := app.ResolveConfig(t.TempDir(), app.Overrides{URL: srv.URL, Token: "tok", Project: "p1"})
	require.NoError(t, err)
	sdk := app.NewClient(cfg, nil)
	assert.Equal(t, srv.URL, sdk.URL())

	p, err := sdk.Projects().Get(context.Background(), model.RawID("p1"))
	require.NoError(t, err)
	assert.Equal(t, "Climate", p.Title())

	ws := t.TempDir()
	e, conn, err := app.NewEngine(context.Background(), ws, sdk, nil)
	require.NoError(t, err)
	defer conn.Close()
	res, err := e.SyncMembership(context.Background(), "pipelines", "p1", "g1", []string{"c2"}, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, []string{"c1", "c2"}, srv.GraphNodes("pipelines", "g1"))
}

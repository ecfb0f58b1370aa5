package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriongate/dicomdispatch/internal/archive"
	"github.com/oriongate/dicomdispatch/internal/config"
	"github.com/oriongate/dicomdispatch/internal/module"
)

func TestActorSubmitRunsDispatcherAndReturns(t *testing.T) {
	dir := t.TempDir()
	loader := writeMainConfig(t, dir, false)
	client := archive.NewFakeClient()
	reg := module.NewRegistry(module.NewFakeLoader(), silentLogger())
	d := newTestDispatcher(t, client, reg, loader)

	actor := NewActor(d, reg, loader, dir, silentLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	// An event kind with no matching Level expands to an empty tree and
	// returns immediately — this only exercises that Submit round-trips
	// through the actor loop without deadlocking.
	err := actor.Submit(context.Background(), Event{Kind: EventStableSeries, ResourceID: "series-missing"})
	require.NoError(t, err)
}

func TestActorLifecycleArmsAndDisarmsRefresh(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ModuleLoadingHeuristic":"mods/*.code","AutoRemove":false,"AutoReloadEach":0.05}`), 0o644))
	loader := config.NewLoader(path)
	require.NoError(t, loader.Refresh())

	client := archive.NewFakeClient()
	reg := module.NewRegistry(module.NewFakeLoader(), silentLogger())
	d := newTestDispatcher(t, client, reg, loader)

	writeModuleFiles(t, dir, "mod1", `{"TriggerLevel":"Series","ClassName":"Echo","CallingAET":"AET_A","DestinationName":"dest1"}`)

	actor := NewActor(d, reg, loader, dir, silentLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go actor.Run(ctx)

	require.NoError(t, actor.NotifyLifecycleStarted(context.Background()))

	require.Eventually(t, func() bool {
		return len(reg.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond, "armed refresh timer must eventually crawl and discover mod1")

	require.NoError(t, actor.NotifyLifecycleStopped(context.Background()))
}

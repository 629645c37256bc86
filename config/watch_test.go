package config

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoReload(t *testing.T) {
	t.Run("RequiresAttachedFile", func(t *testing.T) {
		r, err := New(WithEnvironment(EnvDev))
		require.NoError(t, err)

		_, err = r.AutoReload(context.Background(), 0)
		assert.Error(t, err)
	})

	t.Run("ReloadsActiveEnvironmentOnChange", func(t *testing.T) {
		path := writeConfigFile(t, "env.json", `{"dev": {"api_base_url": "http://before.local"}}`)

		r, err := New(WithFile(path), WithEnvironment(EnvDev))
		require.NoError(t, err)
		require.Equal(t, "http://before.local", r.Current().APIBaseURL)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		notify, err := r.AutoReload(ctx, 50*time.Millisecond)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte(`{"dev": {"api_base_url": "http://after.local"}}`), 0644))

		select {
		case env := <-notify:
			assert.Equal(t, EnvDev, env)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload notification")
		}

		assert.Equal(t, "http://after.local", r.Current().APIBaseURL)
	})

	t.Run("CoalescesRapidChangesIntoOneReload", func(t *testing.T) {
		path := writeConfigFile(t, "env.json", `{"dev": {"api_timeout": 1}}`)

		r, err := New(WithFile(path), WithEnvironment(EnvDev))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		notify, err := r.AutoReload(ctx, 150*time.Millisecond)
		require.NoError(t, err)

		// A burst of writes keeps pushing the debounce window out; only the
		// final contents may be observed, in a single notification.
		for i := 2; i <= 6; i++ {
			require.NoError(t, os.WriteFile(path,
				[]byte(fmt.Sprintf(`{"dev": {"api_timeout": %d}}`, i)), 0644))
			time.Sleep(20 * time.Millisecond)
		}

		select {
		case <-notify:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload notification")
		}
		assert.Equal(t, 6, r.Current().APITimeout)

		select {
		case <-notify:
			t.Fatal("burst of writes produced more than one reload")
		case <-time.After(400 * time.Millisecond):
		}
	})

	t.Run("KeepsPreviousSnapshotOnBadReload", func(t *testing.T) {
		path := writeConfigFile(t, "env.json", `{"dev": {"api_base_url": "http://good.local"}}`)

		r, err := New(WithFile(path), WithEnvironment(EnvDev))
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		notify, err := r.AutoReload(ctx, 50*time.Millisecond)
		require.NoError(t, err)

		require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0644))

		select {
		case <-notify:
			t.Fatal("unexpected notification for a failed reload")
		case <-time.After(500 * time.Millisecond):
		}

		assert.Equal(t, "http://good.local", r.Current().APIBaseURL)
	})
}

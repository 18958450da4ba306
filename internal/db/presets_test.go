package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresetStoreSingleActive(t *testing.T) {
	store := NewPresetStore(openTestDB(t))
	ctx := context.Background()

	_, err := store.ActivePreset(ctx)
	assert.ErrorIs(t, err, ErrPresetNotFound)

	counter := &PrinterPreset{Name: "counter", Type: "epson", Interface: "tcp://10.0.0.5:9100", Active: true}
	kitchen := &PrinterPreset{Name: "kitchen", Type: "star", Interface: "/dev/rfcomm0"}
	require.NoError(t, store.CreatePreset(ctx, counter))
	require.NoError(t, store.CreatePreset(ctx, kitchen))
	assert.Equal(t, "{}", kitchen.ConfigJSON)

	active, err := store.ActivePreset(ctx)
	require.NoError(t, err)
	assert.Equal(t, counter.ID, active.ID)

	got, err := store.GetPreset(ctx, kitchen.ID)
	require.NoError(t, err)
	assert.Equal(t, "/dev/rfcomm0", got.Interface)
	assert.False(t, got.Active)

	_, err = store.GetPreset(ctx, kitchen.ID+100)
	assert.ErrorIs(t, err, ErrPresetNotFound)

	require.NoError(t, store.ActivatePreset(ctx, kitchen.ID))
	active, err = store.ActivePreset(ctx)
	require.NoError(t, err)
	assert.Equal(t, "kitchen", active.Name)

	presets, err := store.ListPresets(ctx)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	activeCount := 0
	for _, p := range presets {
		if p.Active {
			activeCount++
		}
	}
	assert.Equal(t, 1, activeCount)
}

func TestActivatePresetUnknownID(t *testing.T) {
	store := NewPresetStore(openTestDB(t))
	err := store.ActivatePreset(context.Background(), 42)
	assert.ErrorIs(t, err, ErrPresetNotFound)
}

func TestCreatePresetDuplicateName(t *testing.T) {
	store := NewPresetStore(openTestDB(t))
	ctx := context.Background()
	require.NoError(t, store.CreatePreset(ctx, &PrinterPreset{Name: "bar", Type: "epson", Interface: "/dev/rfcomm1"}))
	err := store.CreatePreset(ctx, &PrinterPreset{Name: "bar", Type: "epson", Interface: "/dev/rfcomm2"})
	assert.ErrorIs(t, err, ErrPresetExists)
}

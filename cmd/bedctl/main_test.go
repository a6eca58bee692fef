package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/inpatient-core/internal/adapters/memory"
	"github.com/zatekoja/inpatient-core/internal/application/services"
)

func seededFactory(t *testing.T) (serviceFactory, string) {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	svc := services.NewInpatientService(store.Rooms(), store.Beds(), store.Admissions(), services.NewBedLocker(), zerolog.Nop())

	room, err := svc.CreateRoom(ctx, services.CreateRoomInput{RoomNumber: "900"})
	require.NoError(t, err)
	_, err = svc.AddBed(ctx, room.ID, services.AddBedInput{BedNumber: "A"})
	require.NoError(t, err)

	return func(context.Context, zerolog.Logger) (inpatientOps, func(), error) {
		return svc, func() {}, nil
	}, room.ID
}

func run(t *testing.T, open serviceFactory, args ...string) (string, error) {
	t.Helper()
	cmd := rootCmd(open)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestReconcileCommand(t *testing.T) {
	open, _ := seededFactory(t)

	out, err := run(t, open, "reconcile")
	require.NoError(t, err)

	var result services.ReconcileResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Zero(t, result.RepairedCount)
}

func TestDeleteRoomCommand(t *testing.T) {
	open, roomID := seededFactory(t)

	_, err := run(t, open, "delete-room", roomID)
	assert.ErrorContains(t, err, "--yes")

	out, err := run(t, open, "delete-room", roomID, "--yes")
	require.NoError(t, err)
	var result services.DeleteRoomResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.BedsDeleted)

	_, err = run(t, open, "delete-room", roomID, "--yes")
	assert.Error(t, err)
}

func TestDeleteRoomCommand_RequiresID(t *testing.T) {
	open, _ := seededFactory(t)
	_, err := run(t, open, "delete-room")
	assert.Error(t, err)
}

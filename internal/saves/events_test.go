package saves_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/moddata/internal/saves"
)

func TestManagerEvents(t *testing.T) {
	t.Run("general save loads global data", func(t *testing.T) {
		alpha := newProgressPlugin(t, "Alpha")
		e := newEnv(t, alpha)
		e.write(t, saves.SlotGlobal, `{"Alpha":[{"prefix":"count","value":4}]}`)

		e.manager.HandleLoading(saves.LoadingEvent{SaveName: saves.GeneralSaveName})

		assert.Equal(t, 4, global(t, alpha).Count.Get())
		_, ok := e.manager.Collection(alpha, saves.Local)
		assert.False(t, ok)
	})

	t.Run("local data loads with unlockables only", func(t *testing.T) {
		alpha := newProgressPlugin(t, "Alpha")
		e := newEnv(t, alpha)
		e.write(t, saves.Slot2, `{"Alpha":[{"prefix":"score","value":3}]}`)

		e.manager.HandleLoading(saves.LoadingEvent{SaveName: saves.SaveFile2Name, Step: saves.LoadStepShipItems})
		_, ok := e.manager.Collection(alpha, saves.Local)
		require.False(t, ok)

		e.manager.HandleLoading(saves.LoadingEvent{SaveName: saves.SaveFile2Name, Step: saves.LoadStepUnlockables})
		assert.Equal(t, saves.Slot2, e.manager.ActiveSlot())
		assert.Equal(t, 3, local(t, alpha).Score)
		assert.False(t, e.exists(saves.Slot1))
	})

	t.Run("local data saves with ship items only", func(t *testing.T) {
		alpha := newProgressPlugin(t, "Alpha")
		e := newEnv(t, alpha)
		e.write(t, saves.Slot2, `{"Alpha":[{"prefix":"score","value":3}]}`)
		e.manager.HandleLoading(saves.LoadingEvent{SaveName: saves.SaveFile2Name, Step: saves.LoadStepUnlockables})

		local(t, alpha).Score = 8
		e.manager.HandleSaving(saves.SavingEvent{SaveName: saves.SaveFile2Name, Step: saves.SaveStepQuota})
		assert.EqualValues(t, 3, queryInt(t, e.read(t, saves.Slot2), "Alpha", "score"))

		e.manager.HandleSaving(saves.SavingEvent{SaveName: saves.SaveFile2Name, Step: saves.SaveStepShipItems})
		assert.EqualValues(t, 8, queryInt(t, e.read(t, saves.Slot2), "Alpha", "score"))
	})

	t.Run("general save writes global data", func(t *testing.T) {
		alpha := newProgressPlugin(t, "Alpha")
		e := newEnv(t, alpha)
		e.manager.HandleLoading(saves.LoadingEvent{SaveName: saves.GeneralSaveName})

		global(t, alpha).Count.Set(2)
		e.manager.HandleSaving(saves.SavingEvent{SaveName: saves.GeneralSaveName})

		assert.EqualValues(t, 2, queryInt(t, e.read(t, saves.SlotGlobal), "Alpha", "count"))
	})

	t.Run("reset deletes the slot file", func(t *testing.T) {
		e := newEnv(t, newProgressPlugin(t, "Alpha"))
		e.write(t, saves.Slot3, `{}`)
		e.write(t, saves.Slot1, `{}`)

		e.manager.HandleReset(saves.ResetEvent{SaveName: saves.SaveFile3Name})
		assert.False(t, e.exists(saves.Slot3))
		assert.True(t, e.exists(saves.Slot1))

		assert.NotPanics(t, func() {
			e.manager.HandleReset(saves.ResetEvent{SaveName: saves.SaveFile3Name})
		})
	})
}

func TestSlots(t *testing.T) {
	assert.Equal(t, saves.SlotGlobal, saves.SlotFromSaveName("LCGeneralSaveData"))
	assert.Equal(t, saves.Slot3, saves.SlotFromSaveName("LCSaveFile3"))
	assert.Equal(t, saves.Slot1, saves.SlotFromSaveName("whatever"))
	assert.Equal(t, "LCGlobalModdedSaveData", saves.SlotGlobal.FileName())
	assert.Equal(t, "LCModdedSaveFile2", saves.Slot2.FileName())

	slot, err := saves.ParseSlot("slot3")
	require.NoError(t, err)
	assert.Equal(t, saves.Slot3, slot)
	_, err = saves.ParseSlot("4")
	assert.Error(t, err)
}

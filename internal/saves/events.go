package saves

// LoadStep names the part of a save the host is currently loading.
type LoadStep int

const (
	LoadStepUnknown LoadStep = iota
	LoadStepShipItems
	LoadStepUnlockables
	LoadStepQuota
)

// SaveStep names the part of a save the host is currently writing.
type SaveStep int

const (
	SaveStepUnknown SaveStep = iota
	SaveStepUnlockables
	SaveStepShipItems
	SaveStepQuota
)

// LoadingEvent is raised by the host each time it starts loading part of a
// save file.
type LoadingEvent struct {
	SaveName string
	Step     LoadStep
}

// SavingEvent is raised by the host each time it starts writing part of a
// save file.
type SavingEvent struct {
	SaveName string
	Step     SaveStep
}

// ResetEvent is raised when the player deletes a save file.
type ResetEvent struct {
	SaveName string
}

// HandleLoading reloads the scope that matches the host's load step. The
// general save reloads global data; local data is reloaded once per save,
// when unlockables are loaded.
func (m *Manager) HandleLoading(ev LoadingEvent) {
	if ev.SaveName == GeneralSaveName {
		m.Deserialize(Global)
		return
	}
	if ev.Step != LoadStepUnlockables {
		return
	}
	m.selectSlot(ev.SaveName)
	m.Deserialize(Local)
}

// HandleSaving captures and writes the scope that matches the host's save
// step.
func (m *Manager) HandleSaving(ev SavingEvent) {
	if ev.SaveName == GeneralSaveName {
		m.UpdateAll(Global)
		m.Serialize(Global)
		return
	}
	if ev.Step != SaveStepShipItems {
		return
	}
	m.selectSlot(ev.SaveName)
	m.UpdateAll(Local)
	m.Serialize(Local)
}

// HandleReset deletes the modded file backing the reset save.
func (m *Manager) HandleReset(ev ResetEvent) {
	m.Reset(SlotFromSaveName(ev.SaveName))
}

func (m *Manager) selectSlot(saveName string) {
	slot := SlotFromSaveName(saveName)
	if slot == SlotGlobal {
		return
	}
	m.selected.Store(int32(slot))
}

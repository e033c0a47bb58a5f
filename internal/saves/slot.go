package saves

import "fmt"

// Scope selects which of the two save maps an operation works on.
type Scope int

const (
	// Local data belongs to the currently active numbered save slot.
	Local Scope = iota
	// Global data is shared by every save slot.
	Global
)

func (s Scope) String() string {
	if s == Global {
		return "global"
	}
	return "local"
}

// Slot identifies one save file of the host game.
type Slot int

const (
	SlotGlobal Slot = iota
	Slot1
	Slot2
	Slot3
)

// Save names used by the host game.
const (
	GeneralSaveName = "LCGeneralSaveData"
	SaveFile1Name   = "LCSaveFile1"
	SaveFile2Name   = "LCSaveFile2"
	SaveFile3Name   = "LCSaveFile3"
)

// SlotFromSaveName maps a host save file name to a slot. Unknown names map
// to Slot1.
func SlotFromSaveName(name string) Slot {
	switch name {
	case GeneralSaveName:
		return SlotGlobal
	case SaveFile1Name:
		return Slot1
	case SaveFile2Name:
		return Slot2
	case SaveFile3Name:
		return Slot3
	default:
		return Slot1
	}
}

// FileName returns the name of the modded save file backing the slot.
func (s Slot) FileName() string {
	switch s {
	case SlotGlobal:
		return "LCGlobalModdedSaveData"
	case Slot2:
		return "LCModdedSaveFile2"
	case Slot3:
		return "LCModdedSaveFile3"
	default:
		return "LCModdedSaveFile1"
	}
}

func (s Slot) String() string {
	if s == SlotGlobal {
		return "global"
	}
	if s < Slot1 || s > Slot3 {
		return "slot1"
	}
	return fmt.Sprintf("slot%d", int(s))
}

// ParseSlot accepts "global", "1".."3" or "slot1".."slot3".
func ParseSlot(s string) (Slot, error) {
	switch s {
	case "global", "g":
		return SlotGlobal, nil
	case "1", "slot1":
		return Slot1, nil
	case "2", "slot2":
		return Slot2, nil
	case "3", "slot3":
		return Slot3, nil
	}
	return Slot1, fmt.Errorf("unknown save slot %q", s)
}

// SlotSource reports the slot the player currently has selected.
type SlotSource func() Slot

// FixedSlot returns a SlotSource that always reports s.
func FixedSlot(s Slot) SlotSource {
	return func() Slot { return s }
}

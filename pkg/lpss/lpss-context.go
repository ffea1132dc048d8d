// Copyright (c) 2023 Seagate Technology LLC and/or its Affiliates

// This file implements the private register context kept across suspend
package lpss

// Snapshot holds the private block, one word per register.
type Snapshot [LPSS_PRIV_REG_COUNT]uint32

// Save reads every private register, lowest offset first.
func Save(priv *Window) Snapshot {
	var s Snapshot
	for i := range s {
		s[i] = priv.Read32(uint64(i * 4))
	}
	return s
}

// Restore writes a snapshot back, lowest offset first.
func Restore(priv *Window, s *Snapshot) {
	for i, v := range s {
		priv.Write32(uint64(i*4), v)
	}
}

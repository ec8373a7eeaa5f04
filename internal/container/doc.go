// Package container implements the generation-checked handle table used by
// the device registry.
//
// Callers never see raw addresses. A Handle is a slot index plus the slot's
// generation at insertion time; removing an entry bumps the generation, so a
// stale handle can never resolve to whatever is stored in the slot later.
package container

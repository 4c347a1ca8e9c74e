// Package profile provides the profile and mode store for Lumen Core.
//
// A profile is one configuration slot holding named modes (lighting,
// key bindings, DPI stages). Devices expose a small number of
// hardware-resident slots; profiles beyond that capacity are
// software-only and persist in SQLite keyed by the device serial.
//
// # Mirror Contract
//
// The store mirrors what the hardware is confirmed to hold. Commits
// run the hardware write first and touch the mirror only on success:
//
//	err := store.CommitMode(ctx, devID, 0, mode, func(ctx context.Context, m profile.Mode) error {
//	    return rt.WithCommandLock(ctx, func(ctx context.Context, s *device.Session, slot byte) error {
//	        return ops.ApplyLighting(ctx, s, slot, m.Lighting.Buffer)
//	    })
//	})
//
// A failed write leaves the mirror at its last known-good value and
// flags the profile degraded, so a state read after an error matches
// the device rather than the attempted change.
//
// # Concurrency
//
// The command dispatcher is the only mutator; it already serialises
// per device through the command lock. Reads are shared and return
// deep copies.
package profile

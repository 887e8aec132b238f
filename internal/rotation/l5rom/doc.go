// Package l5rom owns Layer 5 (Range of motion) of the rotation data model.
//
// Responsibilities: reducing the L4 peak sets to the mean pronation angle,
// the mean supination angle and the total arc between them.
// Key types: Result, EmptyPeakSetError.
//
// Dependency rule: L5 may depend on L1-L4.
package l5rom

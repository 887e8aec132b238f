// Package l4peaks owns Layer 4 (Peaks) of the rotation data model.
//
// Responsibilities: locating pronation maxima on the angle series and
// supination maxima on its negation, using a relative amplitude threshold
// and a minimum spacing between accepted peaks.
// Key types: Params, Peak, Set.
//
// Dependency rule: L4 may depend on L1-L3, but never on L5+.
package l4peaks

// Package l2frames owns Layer 2 (Frames) of the rotation data model.
//
// Responsibilities: building the forearm and humerus local coordinate
// systems and the joint coordinate system from the five markers of one
// frame, including the sign anchoring of the floating axis.
// Key types: Basis, Frame, Frames.
//
// Dependency rule: L2 may depend on L1, but never on L3+.
// Every function is a pure function of its arguments; nothing here logs.
package l2frames

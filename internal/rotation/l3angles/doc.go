// Package l3angles owns Layer 3 (Angles) of the rotation data model.
//
// Responsibilities: extracting the signed forearm rotation angle (and the
// secondary humeral angle) from the L2 frames of every sample of a trial.
// Key types: Angles, Series, FrameError.
//
// Dependency rule: L3 may depend on L1-L2, but never on L4+.
package l3angles

// Package l1markers owns Layer 1 (Markers) of the rotation data model.
//
// Responsibilities: reading Qualisys Track Manager (QTM) TSV exports,
// validating the marker header and re-ordering marker columns into the
// anatomical order the upper layers expect.
// Key types: MarkerSample, Trial, MarkerOrder.
//
// Dependency rule: L1 depends on no other rotation layer.
package l1markers

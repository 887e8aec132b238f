// Package rotation groups the forearm axial-rotation pipeline.
//
// The pipeline is split into numbered layers, each in its own package:
//
//	L1 l1markers  marker trajectories read from a QTM TSV export
//	L2 l2frames   per-frame anatomical coordinate frames
//	L3 l3angles   signed pronation/supination angle per frame
//	L4 l4peaks    pronation and supination peak detection
//	L5 l5rom      range-of-motion statistics from the peak sets
//
// Dependency rule: a layer may depend on lower layers, never on higher
// ones. Layers L2-L5 perform no I/O and hold no state between calls;
// package pipeline sequences them for one trial.
package rotation

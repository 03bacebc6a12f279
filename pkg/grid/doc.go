// Package grid holds the rolling SDF volume: a fixed lattice of dense voxel
// blocks covering a world-space bounding box, addressed toroidally so the
// window can translate in whole-block steps without moving block contents.
package grid

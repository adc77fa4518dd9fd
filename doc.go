// Package troll wires together the TROLL simulation kernel: the 3D
// leaf-area-density voxel field, the Farquhar-von Caemmerer-Berry/Medlyn
// leaf flux solver, per-tree growth and demography, the treefall
// disturbance model, seed dispersal and recruitment, the optional soil
// water bucket model, and the per-timestep scheduler that drives them all
// (spec §4.8, §9 "wrap in a single Simulation context holding ownership of
// all arrays; pass explicitly to subsystems").
package troll

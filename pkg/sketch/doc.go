// Package sketch is the entity store and constraint graph for a single 2D
// sketch. Entities and constraints are closed variant types; a Sketch owns
// them in insertion order, which is also the canonical parameter order the
// solver uses.
package sketch

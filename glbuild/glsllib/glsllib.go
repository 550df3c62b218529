// Package glsllib holds GLSL helper functions shared by node templates.
// Helpers are prefixed with glg to stay clear of generated names.
package glsllib

import (
	_ "embed"
)

//go:embed hexgrid.glsl
var hexGridSrc string

// HexGrid returns a mask that is 1 inside hexagonal cells of unit size and 0
// on the gaps between them:
//
//	float glgHexGrid(vec2 p, float gap)
func HexGrid() string { return hexGridSrc }

//go:embed quadwarp.glsl
var quadWarpSrc string

// QuadWarp maps p to the bilinear coordinates of the quad a,b,c,d (counter-clockwise).
// Points outside the quad map outside [0,1]:
//
//	vec2 glgQuadWarp(vec2 p, vec2 a, vec2 b, vec2 c, vec2 d)
func QuadWarp() string { return quadWarpSrc }

//go:embed box3D.glsl
var boxSrc string

// Box is the SDF of a box of half extents b:
//
//	float glgBox(vec3 p, vec3 b)
func Box() string { return boxSrc }

//go:embed smoothmin.glsl
var smoothMinSrc string

// SmoothMin is the polynomial smooth minimum. k <= 0 is a hard min.
//
//	float glgSmoothMin(float a, float b, float k)
func SmoothMin() string { return smoothMinSrc }

// All returns every helper in this package.
func All() []string {
	return []string{HexGrid(), QuadWarp(), Box(), SmoothMin()}
}

package preview

import "regexp"

var waxPattern = regexp.MustCompile(`(?i)wax`)

// isWax reports whether a mesh takes the wax color, matching on the mesh
// name or its material name.
func isWax(mesh Mesh, materials []Material) bool {
	if waxPattern.MatchString(mesh.Name) {
		return true
	}
	return mesh.Material >= 0 && waxPattern.MatchString(materials[mesh.Material].Name)
}

// tint returns the model's meshes and materials with color applied to every
// wax part. Each tinted mesh gets its own copy of its material appended to
// the returned list; the model's own slices are left untouched so cached
// models stay clean.
func tint(m *Model, color string) ([]Mesh, []Material) {
	meshes := make([]Mesh, len(m.Meshes))
	copy(meshes, m.Meshes)
	materials := make([]Material, len(m.Materials), len(m.Materials)+len(m.Meshes))
	copy(materials, m.Materials)

	for i, mesh := range meshes {
		if !isWax(mesh, m.Materials) {
			continue
		}
		clone := Material{Name: "wax"}
		if mesh.Material >= 0 {
			clone = m.Materials[mesh.Material]
		}
		clone.Color = color
		materials = append(materials, clone)
		meshes[i].Material = len(materials) - 1
	}
	return meshes, materials
}

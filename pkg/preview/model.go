package preview

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

var (
	// ErrInvalidModel is returned for assets that are neither glTF JSON nor GLB.
	ErrInvalidModel = errors.New("invalid model asset")

	// ErrEmptyModel is returned for models with no renderable geometry.
	ErrEmptyModel = errors.New("model has no geometry")
)

// Material is a surface definition shared by the meshes that reference it.
type Material struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Cylinder describes the procedural stand-in mesh.
type Cylinder struct {
	Radius float64 `json:"radius"`
	Height float64 `json:"height"`
}

// Mesh is one drawable primitive with its world-space bounds.
type Mesh struct {
	Name     string    `json:"name"`
	Material int       `json:"material"`
	Bounds   Box3      `json:"-"`
	Cylinder *Cylinder `json:"cylinder,omitempty"`
}

// Model is a parsed, centered candle model. Models are cached and shared
// between viewers, so nothing may modify one after parsing; tinting works
// on copies of the material list.
type Model struct {
	URL       string
	Meshes    []Mesh
	Materials []Material
	Fallback  bool

	// Offset moves the authored model so its bounds are centered on the
	// origin. Bounds are already centered.
	Offset Vec3
	Bounds Box3
}

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A // "JSON"
)

// ParseModel parses a glTF 2.0 asset, JSON or binary, computes its bounds
// from the POSITION accessor limits under each node's transform, and
// centers it.
func ParseModel(url string, data []byte) (*Model, error) {
	doc, err := gltfJSON(data)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: malformed json", ErrInvalidModel)
	}
	root := gjson.ParseBytes(doc)
	if !root.Get("asset.version").Exists() {
		return nil, fmt.Errorf("%w: missing asset.version", ErrInvalidModel)
	}

	m := &Model{URL: url}
	root.Get("materials").ForEach(func(i, mat gjson.Result) bool {
		m.Materials = append(m.Materials, Material{
			Name:  mat.Get("name").String(),
			Color: baseColorHex(mat.Get("pbrMetallicRoughness.baseColorFactor")),
		})
		return true
	})

	p := &gltfParser{root: root, model: m, visiting: map[int64]bool{}}
	for _, n := range p.sceneRoots() {
		if err := p.walk(n, Identity()); err != nil {
			return nil, err
		}
	}
	if len(m.Meshes) == 0 {
		return nil, ErrEmptyModel
	}
	m.center()
	return m, nil
}

// gltfJSON returns the JSON document, unwrapping a GLB container.
func gltfJSON(data []byte) ([]byte, error) {
	if len(data) < 4 || binary.LittleEndian.Uint32(data) != glbMagic {
		return bytes.TrimSpace(data), nil
	}
	if len(data) < 20 {
		return nil, fmt.Errorf("%w: truncated glb header", ErrInvalidModel)
	}
	if v := binary.LittleEndian.Uint32(data[4:]); v != 2 {
		return nil, fmt.Errorf("%w: glb version %d", ErrInvalidModel, v)
	}
	total := binary.LittleEndian.Uint32(data[8:])
	if int(total) > len(data) {
		return nil, fmt.Errorf("%w: glb length %d exceeds %d bytes", ErrInvalidModel, total, len(data))
	}
	chunkLen := binary.LittleEndian.Uint32(data[12:])
	chunkType := binary.LittleEndian.Uint32(data[16:])
	if chunkType != glbChunkJSON {
		return nil, fmt.Errorf("%w: first glb chunk is not json", ErrInvalidModel)
	}
	end := 20 + int(chunkLen)
	if end > len(data) {
		return nil, fmt.Errorf("%w: truncated json chunk", ErrInvalidModel)
	}
	return data[20:end], nil
}

type gltfParser struct {
	root     gjson.Result
	model    *Model
	visiting map[int64]bool
}

func (p *gltfParser) sceneRoots() []int64 {
	scene := p.root.Get("scene").Int()
	nodes := p.root.Get(fmt.Sprintf("scenes.%d.nodes", scene))
	if !nodes.Exists() {
		// No scene: every node is a root.
		var all []int64
		for i := range p.root.Get("nodes").Array() {
			all = append(all, int64(i))
		}
		return all
	}
	var roots []int64
	for _, n := range nodes.Array() {
		roots = append(roots, n.Int())
	}
	return roots
}

func (p *gltfParser) walk(idx int64, parent Mat4) error {
	if p.visiting[idx] {
		return fmt.Errorf("%w: node %d is its own ancestor", ErrInvalidModel, idx)
	}
	node := p.root.Get(fmt.Sprintf("nodes.%d", idx))
	if !node.Exists() {
		return fmt.Errorf("%w: missing node %d", ErrInvalidModel, idx)
	}
	p.visiting[idx] = true
	defer delete(p.visiting, idx)

	world := parent.Mul(nodeMatrix(node))

	if mesh := node.Get("mesh"); mesh.Exists() {
		if err := p.addMesh(mesh.Int(), node.Get("name").String(), world); err != nil {
			return err
		}
	}
	for _, child := range node.Get("children").Array() {
		if err := p.walk(child.Int(), world); err != nil {
			return err
		}
	}
	return nil
}

func (p *gltfParser) addMesh(idx int64, nodeName string, world Mat4) error {
	mesh := p.root.Get(fmt.Sprintf("meshes.%d", idx))
	if !mesh.Exists() {
		return fmt.Errorf("%w: missing mesh %d", ErrInvalidModel, idx)
	}
	name := mesh.Get("name").String()
	if name == "" {
		name = nodeName
	}

	for _, prim := range mesh.Get("primitives").Array() {
		pos := prim.Get("attributes.POSITION")
		if !pos.Exists() {
			continue
		}
		acc := p.root.Get(fmt.Sprintf("accessors.%d", pos.Int()))
		lo, hi := acc.Get("min").Array(), acc.Get("max").Array()
		if len(lo) != 3 || len(hi) != 3 {
			return fmt.Errorf("%w: accessor %d lacks min/max", ErrInvalidModel, pos.Int())
		}

		material := -1
		if mat := prim.Get("material"); mat.Exists() {
			material = int(mat.Int())
			if material < 0 || material >= len(p.model.Materials) {
				return fmt.Errorf("%w: mesh %q uses missing material %d", ErrInvalidModel, name, material)
			}
		}

		local := NewBox3(
			Vec3{lo[0].Float(), lo[1].Float(), lo[2].Float()},
			Vec3{hi[0].Float(), hi[1].Float(), hi[2].Float()},
		)
		p.model.Meshes = append(p.model.Meshes, Mesh{
			Name:     name,
			Material: material,
			Bounds:   local.Transform(world),
		})
	}
	return nil
}

func nodeMatrix(node gjson.Result) Mat4 {
	if m := node.Get("matrix").Array(); len(m) == 16 {
		var out Mat4
		for i, v := range m {
			out[i] = v.Float()
		}
		return out
	}

	t := Vec3{}
	if v := node.Get("translation").Array(); len(v) == 3 {
		t = Vec3{v[0].Float(), v[1].Float(), v[2].Float()}
	}
	q := [4]float64{0, 0, 0, 1}
	if v := node.Get("rotation").Array(); len(v) == 4 {
		q = [4]float64{v[0].Float(), v[1].Float(), v[2].Float(), v[3].Float()}
	}
	s := Vec3{1, 1, 1}
	if v := node.Get("scale").Array(); len(v) == 3 {
		s = Vec3{v[0].Float(), v[1].Float(), v[2].Float()}
	}
	return ComposeTRS(t, q, s)
}

func baseColorHex(factor gjson.Result) string {
	c := factor.Array()
	if len(c) < 3 {
		return ""
	}
	return fmt.Sprintf("#%02X%02X%02X", channel(c[0].Float()), channel(c[1].Float()), channel(c[2].Float()))
}

func channel(f float64) int {
	switch {
	case f <= 0:
		return 0
	case f >= 1:
		return 255
	default:
		return int(f*255 + 0.5)
	}
}

// center translates the model so its bounding box is centered on the origin.
func (m *Model) center() {
	var bounds Box3
	for _, mesh := range m.Meshes {
		bounds = bounds.Union(mesh.Bounds)
	}
	m.Offset = bounds.Center().Scale(-1)
	m.Bounds = bounds.Translate(m.Offset)
	for i := range m.Meshes {
		m.Meshes[i].Bounds = m.Meshes[i].Bounds.Translate(m.Offset)
	}
}

// Fallback cylinder proportions, close to a container candle.
const (
	fallbackRadius = 0.4
	fallbackHeight = 1.2
)

// FallbackModel is the procedural cylinder shown when the model asset
// cannot be loaded. It is already centered.
func FallbackModel(url string) *Model {
	half := fallbackHeight / 2
	m := &Model{
		URL:       url,
		Fallback:  true,
		Materials: []Material{{Name: "wax", Color: DefaultWaxColor}},
		Meshes: []Mesh{{
			Name:     "wax",
			Material: 0,
			Cylinder: &Cylinder{Radius: fallbackRadius, Height: fallbackHeight},
			Bounds:   NewBox3(Vec3{-fallbackRadius, -half, -fallbackRadius}, Vec3{fallbackRadius, half, fallbackRadius}),
		}},
	}
	m.center()
	return m
}

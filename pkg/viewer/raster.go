package viewer

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/philipparndt/scanview/pkg/geometry"
	"github.com/philipparndt/scanview/pkg/stl"
)

// Lighting describes the flat-shaded look of a rendered mesh
type Lighting struct {
	Background  color.RGBA
	Base        color.RGBA
	Ambient     float64
	Directional float64
	// Direction points from the scene towards the light
	Direction geometry.Vector3
}

// DefaultLighting is a grey model on white with one ambient and one directional light
func DefaultLighting() Lighting {
	return Lighting{
		Background:  color.RGBA{R: 255, G: 255, B: 255, A: 255},
		Base:        color.RGBA{R: 0xa0, G: 0xa0, B: 0xa0, A: 255},
		Ambient:     0.6,
		Directional: 0.8,
		Direction:   geometry.NewVector3(10, 10, 10).Normalize(),
	}
}

func (l Lighting) shade(normal geometry.Vector3) color.RGBA {
	intensity := l.Ambient + l.Directional*math.Max(0, normal.Dot(l.Direction))
	intensity = math.Min(1, intensity)
	return color.RGBA{
		R: uint8(float64(l.Base.R) * intensity),
		G: uint8(float64(l.Base.G) * intensity),
		B: uint8(float64(l.Base.B) * intensity),
		A: 255,
	}
}

// Scene places a model in world space: vertices are translated by -Offset and then scaled
type Scene struct {
	Model  *stl.Model
	Offset geometry.Vector3
	Scale  float64
}

// CenteredScene centers the model on the origin and applies a uniform scale
func CenteredScene(model *stl.Model, scale float64) Scene {
	if scale <= 0 {
		scale = 1
	}
	return Scene{Model: model, Offset: model.BoundingBox().Center(), Scale: scale}
}

func (s Scene) transform(v geometry.Vector3) geometry.Vector3 {
	return v.Sub(s.Offset).Mul(s.Scale)
}

// RenderMesh rasterizes the scene with a depth buffer into a new image of the given size
func RenderMesh(scene Scene, camera *Camera, width, height int, lighting Lighting) *image.RGBA {
	if width <= 0 || height <= 0 {
		return image.NewRGBA(image.Rect(0, 0, 0, 0))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: lighting.Background}, image.Point{}, draw.Src)

	if scene.Model == nil {
		return img
	}

	zbuffer := make([]float64, width*height)
	for i := range zbuffer {
		zbuffer[i] = math.Inf(1)
	}

	forward, right, up := camera.basis()

	for _, triangle := range scene.Model.Triangles {
		v1 := scene.transform(triangle.V1)
		v2 := scene.transform(triangle.V2)
		v3 := scene.transform(triangle.V3)

		x1, y1, z1, ok1 := camera.project(v1, forward, right, up)
		x2, y2, z2, ok2 := camera.project(v2, forward, right, up)
		x3, y3, z3, ok3 := camera.project(v3, forward, right, up)
		if !ok1 || !ok2 || !ok3 {
			continue
		}

		normal := triangle.ShadingNormal()
		// shade both faces the same so open meshes are not black from behind
		if normal.Dot(camera.Position.Sub(v1)) < 0 {
			normal = normal.Mul(-1)
		}

		fillTriangleWithDepth(img, zbuffer,
			[3]float64{x1, y1, z1},
			[3]float64{x2, y2, z2},
			[3]float64{x3, y3, z3},
			lighting.shade(normal))
	}

	return img
}

// fillTriangleWithDepth fills a triangle with depth testing; smaller z is closer
func fillTriangleWithDepth(img *image.RGBA, zbuffer []float64, a, b, c [3]float64, col color.RGBA) {
	vertices := [3][3]float64{a, b, c}

	// sort by y, top to bottom
	if vertices[0][1] > vertices[1][1] {
		vertices[0], vertices[1] = vertices[1], vertices[0]
	}
	if vertices[1][1] > vertices[2][1] {
		vertices[1], vertices[2] = vertices[2], vertices[1]
	}
	if vertices[0][1] > vertices[1][1] {
		vertices[0], vertices[1] = vertices[1], vertices[0]
	}

	edges := [3][2][3]float64{
		{vertices[0], vertices[1]},
		{vertices[1], vertices[2]},
		{vertices[0], vertices[2]},
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	top := int(math.Max(0, math.Ceil(vertices[0][1])))
	bottom := int(math.Min(float64(bounds.Max.Y-1), vertices[2][1]))

	for y := top; y <= bottom; y++ {
		fy := float64(y)

		var span [2][2]float64 // x, z
		found := 0

		for _, edge := range edges {
			p, q := edge[0], edge[1]
			if p[1] == q[1] || fy < p[1] || fy > q[1] || found == 2 {
				continue
			}
			t := (fy - p[1]) / (q[1] - p[1])
			span[found] = [2]float64{p[0] + t*(q[0]-p[0]), p[2] + t*(q[2]-p[2])}
			found++
		}

		if found < 2 {
			continue
		}

		xStart, zStart := span[0][0], span[0][1]
		xEnd, zEnd := span[1][0], span[1][1]
		if xStart > xEnd {
			xStart, xEnd = xEnd, xStart
			zStart, zEnd = zEnd, zStart
		}

		from := int(math.Max(0, math.Ceil(xStart)))
		to := int(math.Min(float64(bounds.Max.X-1), xEnd))

		for x := from; x <= to; x++ {
			t := 0.0
			if xEnd != xStart {
				t = (float64(x) - xStart) / (xEnd - xStart)
			}
			z := zStart + t*(zEnd-zStart)

			idx := y*width + x
			if z < zbuffer[idx] {
				zbuffer[idx] = z
				img.SetRGBA(x, y, col)
			}
		}
	}
}

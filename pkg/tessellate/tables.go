package tessellate

import (
	"sort"

	v3 "github.com/deadsy/sdfx/vec/v3"
)

// Cube topology. Corner i sits at cornerOffset[i] from the cube's minimum
// voxel; edge e joins edgeCorners[e]; each face lists its corners in
// cyclic order.
var cornerOffset = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
}

var edgeCorners = [12][2]int{
	{0, 1}, {1, 2}, {2, 3}, {3, 0},
	{4, 5}, {5, 6}, {6, 7}, {7, 4},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

var cubeFaces = [6][4]int{
	{0, 1, 2, 3}, {4, 5, 6, 7}, {0, 1, 5, 4},
	{1, 2, 6, 5}, {2, 3, 7, 6}, {3, 0, 4, 7},
}

// maxTriangles is the most triangles any cube configuration emits.
const maxTriangles = 5

// edgeTable[c] has bit e set when edge e is crossed in configuration c,
// where bit i of c is set when corner i is inside. triTable[c] lists edge
// triples, one per triangle, terminated by -1.
var (
	edgeTable [256]uint16
	triTable  [256][3*maxTriangles + 1]int8
)

func init() {
	for c := 0; c < 256; c++ {
		edgeTable[c] = crossedEdges(c)
		for i := range triTable[c] {
			triTable[c][i] = -1
		}
		for i, e := range triangulate(c) {
			triTable[c][i] = int8(e)
		}
	}
}

func inside(c, corner int) bool { return c&(1<<corner) != 0 }

func crossedEdges(c int) uint16 {
	var mask uint16
	for e, ab := range edgeCorners {
		if inside(c, ab[0]) != inside(c, ab[1]) {
			mask |= 1 << e
		}
	}
	return mask
}

func edgeBetween(a, b int) int {
	for e, ab := range edgeCorners {
		if (ab[0] == a && ab[1] == b) || (ab[0] == b && ab[1] == a) {
			return e
		}
	}
	return -1
}

// faceSegments returns the iso-line segments on one face as edge pairs.
// On an ambiguous face (all four edges crossed) every inside corner is cut
// off on its own, so inside corners are never joined across the diagonal.
// The choice depends only on the face, so the two cubes sharing it agree.
func faceSegments(c int, face [4]int) [][2]int {
	var edges, crossed [4]int
	n := 0
	for k := 0; k < 4; k++ {
		a, b := face[k], face[(k+1)%4]
		edges[k] = edgeBetween(a, b)
		if inside(c, a) != inside(c, b) {
			crossed[n] = edges[k]
			n++
		}
	}
	switch n {
	case 2:
		return [][2]int{{crossed[0], crossed[1]}}
	case 4:
		var segs [][2]int
		for k := 0; k < 4; k++ {
			if inside(c, face[k]) {
				segs = append(segs, [2]int{edges[(k+3)%4], edges[k]})
			}
		}
		return segs
	default:
		return nil
	}
}

// edgeLoops chains the face segments of configuration c into closed loops
// of crossed edges. Every crossed edge lies on two faces, so each appears
// in exactly one loop.
func edgeLoops(c int) [][]int {
	adj := map[int][]int{}
	for _, f := range cubeFaces {
		for _, s := range faceSegments(c, f) {
			adj[s[0]] = append(adj[s[0]], s[1])
			adj[s[1]] = append(adj[s[1]], s[0])
		}
	}
	starts := make([]int, 0, len(adj))
	for e := range adj {
		starts = append(starts, e)
	}
	sort.Ints(starts)

	seen := map[int]bool{}
	var loops [][]int
	for _, s := range starts {
		if seen[s] {
			continue
		}
		loop := []int{s}
		seen[s] = true
		prev, cur := -1, s
		for {
			next := -1
			for _, n := range adj[cur] {
				if n != prev && !seen[n] {
					next = n
					break
				}
			}
			if next < 0 {
				break
			}
			loop = append(loop, next)
			seen[next] = true
			prev, cur = cur, next
		}
		loops = append(loops, loop)
	}
	return loops
}

func cornerVec(i int) v3.Vec {
	o := cornerOffset[i]
	return v3.Vec{X: float64(o[0]), Y: float64(o[1]), Z: float64(o[2])}
}

func edgeMid(e int) v3.Vec {
	ab := edgeCorners[e]
	return cornerVec(ab[0]).Add(cornerVec(ab[1])).MulScalar(0.5)
}

// outward returns the inside-to-outside direction along edge e.
func outward(c, e int) v3.Vec {
	a, b := edgeCorners[e][0], edgeCorners[e][1]
	if inside(c, a) {
		return cornerVec(b).Sub(cornerVec(a))
	}
	return cornerVec(a).Sub(cornerVec(b))
}

// triangulate returns the edge triples for configuration c. Each loop is
// wound counter-clockwise seen from outside, then fanned from the start
// vertex whose fan best agrees with the local outward direction.
func triangulate(c int) []int {
	var out []int
	for _, loop := range edgeLoops(c) {
		var normal, dir v3.Vec
		for i, e := range loop {
			p, q := edgeMid(e), edgeMid(loop[(i+1)%len(loop)])
			normal.X += (p.Y - q.Y) * (p.Z + q.Z)
			normal.Y += (p.Z - q.Z) * (p.X + q.X)
			normal.Z += (p.X - q.X) * (p.Y + q.Y)
			dir = dir.Add(outward(c, e))
		}
		if normal.Dot(dir) < 0 {
			for i, j := 0, len(loop)-1; i < j; i, j = i+1, j-1 {
				loop[i], loop[j] = loop[j], loop[i]
			}
		}

		best, bestScore := 0, 0.0
		for r := range loop {
			if s := fanScore(c, loop, r); r == 0 || s > bestScore {
				best, bestScore = r, s
			}
		}
		n := len(loop)
		for i := 1; i < n-1; i++ {
			out = append(out, loop[best], loop[(best+i)%n], loop[(best+i+1)%n])
		}
	}
	return out
}

// fanScore is the worst agreement between a fan triangle's normal and the
// outward direction of its three edges, fanning loop from index r.
func fanScore(c int, loop []int, r int) float64 {
	n := len(loop)
	score := 0.0
	for i := 1; i < n-1; i++ {
		a, b, d := loop[r], loop[(r+i)%n], loop[(r+i+1)%n]
		pa := edgeMid(a)
		tn := edgeMid(b).Sub(pa).Cross(edgeMid(d).Sub(pa))
		s := tn.Dot(outward(c, a).Add(outward(c, b)).Add(outward(c, d)))
		if i == 1 || s < score {
			score = s
		}
	}
	return score
}

package blend

import "github.com/nci/gapfill/raster"

// feather writes alpha*source + (1-alpha)*target over the region of out,
// alpha growing linearly with the distance to the region border up to radius.
func feather(out, source, target *raster.Buffer, region Region, radius int) {
	dist := region.distances()
	for i, in := range region.In {
		if !in || source.IsNoData(i) {
			continue
		}
		alpha := 1.0
		if radius > 0 && dist[i] >= 0 && dist[i] < radius {
			alpha = float64(dist[i]) / float64(radius)
		}
		s, t := float64(source.Data[i]), float64(target.Data[i])
		if target.IsNoData(i) {
			alpha = 1
		}
		out.Data[i] = float32(alpha*s + (1-alpha)*t)
	}
}

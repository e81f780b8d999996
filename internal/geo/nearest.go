package geo

// Site is a candidate location for nearest-site search.
type Site struct {
	ID       int
	Location Point
}

// Nearest returns the site closest to p and its distance in kilometers.
// It returns ok=false when p is invalid or sites is empty; sites with an
// invalid location are skipped. Equal distances resolve to the lowest ID so
// the result does not depend on slice order.
//
// Nearest applies no distance limit. Whether a far match is acceptable is
// the caller's decision.
func Nearest(p Point, sites []Site) (Site, float64, bool) {
	if !p.Valid() {
		return Site{}, 0, false
	}

	var (
		best  Site
		bestD float64
		found bool
	)
	for _, s := range sites {
		if !s.Location.Valid() {
			continue
		}
		d := DistanceKM(p, s.Location)
		if !found || d < bestD || (d == bestD && s.ID < best.ID) {
			best, bestD, found = s, d, true
		}
	}
	return best, bestD, found
}

package coord

// Projection maps the output grid of a coverage map to WGS84. Output pixels
// are spaced evenly in the projected CRS and converted back to lon/lat before
// being located in the scene. Scene geolocation never goes through a
// Projection: it comes from the geolocation bands.
type Projection interface {
	// ToWGS84 converts a grid position in CRS units to lon/lat degrees.
	ToWGS84(x, y float64) (lon, lat float64)

	// FromWGS84 converts lon/lat degrees to CRS units, used for the grid corners.
	FromWGS84(lon, lat float64) (x, y float64)

	// EPSG returns the code accepted by ForEPSG.
	EPSG() int
}

// ForEPSG returns the output grid projection for an EPSG code, or nil if
// coverage maps cannot be laid out in that CRS.
func ForEPSG(epsg int) Projection {
	switch epsg {
	case 4326:
		return &WGS84Identity{}
	case 3857:
		return &WebMercatorProj{}
	default:
		return nil
	}
}

// WGS84Identity lays out the grid directly in degrees (plate carrée).
type WGS84Identity struct{}

func (w *WGS84Identity) ToWGS84(x, y float64) (lon, lat float64)   { return x, y }
func (w *WGS84Identity) FromWGS84(lon, lat float64) (x, y float64) { return lon, lat }
func (w *WGS84Identity) EPSG() int                                 { return 4326 }

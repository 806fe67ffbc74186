package geomath

import "math"

// EarthRadiusM is the mean Earth radius used for great-circle math.
const EarthRadiusM = 6371000.0

// Speed conversion factors from meters/second.
const (
	MetersPerSecondToKmh   = 3.6
	MetersPerSecondToMph   = 2.23694
	KnotsToMetersPerSecond = 0.514444
)

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

func toDegrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// DistanceMeters returns the haversine great-circle distance between two
// points given in degrees.
//
//	a = sin²(Δlat/2) + cos(lat1)·cos(lat2)·sin²(Δlon/2)
//	d = 2R·atan2(√a, √(1−a))
func DistanceMeters(lat1, lon1, lat2, lon2 float64) float64 {
	rlat1 := toRadians(lat1)
	rlat2 := toRadians(lat2)
	sinLat := math.Sin(toRadians(lat2-lat1) / 2)
	sinLon := math.Sin(toRadians(lon2-lon1) / 2)

	a := sinLat*sinLat + math.Cos(rlat1)*math.Cos(rlat2)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusM * c
}

// DestinationPoint returns the point reached by travelling distanceM meters
// from (lat, lon) on the given initial bearing (degrees, 0 = north).
func DestinationPoint(lat, lon, bearingDeg, distanceM float64) (float64, float64) {
	delta := distanceM / EarthRadiusM
	theta := toRadians(bearingDeg)
	phi1 := toRadians(lat)
	lambda1 := toRadians(lon)

	sinPhi2 := math.Sin(phi1)*math.Cos(delta) + math.Cos(phi1)*math.Sin(delta)*math.Cos(theta)
	phi2 := math.Asin(sinPhi2)
	y := math.Sin(theta) * math.Sin(delta) * math.Cos(phi1)
	x := math.Cos(delta) - math.Sin(phi1)*sinPhi2
	lambda2 := lambda1 + math.Atan2(y, x)

	lon2 := math.Mod(toDegrees(lambda2)+540, 360) - 180
	return toDegrees(phi2), lon2
}

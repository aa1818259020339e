// Package solar computes local sunrise and sunset instants for a location.
//
// Coordinates are not validated here; callers must make sure both latitude
// and longitude are known before asking for an event.
package solar

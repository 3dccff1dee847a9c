// Package gps reads NMEA 0183 from a serial GNSS receiver and publishes the
// latest device location for the layout engine.
//
// Only RMC (position, course, fix status) and GGA (altitude, HDOP) are used.
// A void RMC marks the fix as lost so the engine can report a location
// failure.
package gps

// Package livemap folds the observation event stream into map markers.
//
// A Session is created when the subscriber starts and closed when it stops.
// The first event initialises the map: its center is the mean position of
// every site with real coordinates and its zoom is DefaultZoom. Each event
// after decoding is joined with the site directory; if the site has a
// location a marker is appended. Markers are never merged or evicted, so the
// marker count only grows and marker order is receive order.
//
// After every decoded event the full View is handed to the Sink. A failing
// sink produces a DisplayError but the marker stays in the session and later
// events keep being processed. Handle is safe for concurrent use.
package livemap

// Package opus maps user quality preferences onto concrete libopus encoder
// parameter sets.
package opus

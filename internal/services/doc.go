// Package services defines shared error sentinels and context keys used across
// the encode pipeline and its collaborators.
package services

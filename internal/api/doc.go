// Package api exposes the REST surface for creating, managing, and driving
// trading agents, plus the metrics endpoint consumed by scrapers.
package api

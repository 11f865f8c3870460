// Package server wires the HTTP surface: webhook callbacks for both
// providers, the admin subscription API, the events consumer API, and the
// health and metrics endpoints.
package server

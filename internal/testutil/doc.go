// Package testutil holds fixtures shared by tests across packages: the 4x8
// reference topology, bulk submission helpers and deterministic ID
// generators.
package testutil

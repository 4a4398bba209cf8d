// Package version holds the fmbridge release identifiers.
package version

// AgentString is the name the bridge and the development host report
// to each other.
var AgentString = "fmbridge"

// AgentVersion is the current release of fmbridge.
var AgentVersion = "v0.3.0"

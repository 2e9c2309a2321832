// Package version carries chancored's build version string, grounded on
// the teacher's version package (referenced by cmd/tendermint/commands/
// version.go as version.TMCoreSemVer).
package version

// ChanCoreSemVer is chancored's semantic version.
const ChanCoreSemVer = "0.1.0"

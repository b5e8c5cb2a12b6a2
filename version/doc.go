// Package version reports the build version of streamkit binaries.
//
// The variables are set with -ldflags at build time; anything left unset
// is filled from the VCS information Go embeds in the binary.
package version

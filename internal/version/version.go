// Package version holds the release version of the placeenricher binary.
package version

// Current is the release version, without a leading "v".
const Current = "0.1.0"

// String is the banner printed by the version command.
func String() string {
	return "placeenricher " + Current
}

package handshake

import (
	"fmt"

	"github.com/blang/semver/v4"
)

// ProtocolVersion is the wire protocol version this build speaks. The
// client stamps it into ClientChallengeRequest; the server refuses to
// mint a challenge cookie for a client whose major version differs,
// so an incompatible client fails at the first exchange instead of
// misparsing Data packets later.
var ProtocolVersion = semver.MustParse("1.0.0")

// CheckCompatible parses a remote peer's advertised protocol version
// and reports whether this build can talk to it. Minor and patch
// drift is tolerated; a major mismatch is not.
func CheckCompatible(remote string) error {
	v, err := semver.Parse(remote)
	if err != nil {
		return fmt.Errorf("handshake: parsing remote protocol version %q: %w", remote, err)
	}
	if v.Major != ProtocolVersion.Major {
		return fmt.Errorf("handshake: remote protocol version %s incompatible with local %s", v, ProtocolVersion)
	}
	return nil
}

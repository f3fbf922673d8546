package artifact

import "fmt"

// ResolutionError means the requested release asset or version could not be
// located. Fatal to the whole run: nothing can be provisioned without it.
type ResolutionError struct {
	Ref string
	Err error
}

func (e ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolve %s: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("resolve %s: no matching asset", e.Ref)
}

func (e ResolutionError) Unwrap() error { return e.Err }

// IntegrityError means the downloaded bytes did not match the expected
// checksum from the release metadata.
type IntegrityError struct {
	Path string
	Want string
	Got  string
}

func (e IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s", e.Path, e.Want, e.Got)
}

// Package deployerrors defines the error vocabulary of the deploy
// ingestion pipeline: every rejection a PUT can produce carries a kind,
// a human message and an HTTP status hint.
package deployerrors

import "fmt"

// Kind tags a deploy rejection with its cause, per spec §7.
type Kind string

const (
	KindRegexValidationFailed    Kind = "regex-validation-failed"
	KindPOMEntryMismatch         Kind = "pom-entry-mismatch"
	KindNonSnapshotRedeploy      Kind = "non-snapshot-redeploy"
	KindCentralShadow            Kind = "central-shadow"
	KindCentralShadowCheckFailed Kind = "central-shadow-check-failure"
	KindMissingJarFile           Kind = "missing-jar-file"
	KindFileMissingChecksum      Kind = "file-missing-checksum"
	KindFileInvalidChecksum      Kind = "file-invalid-checksum"
	KindFileMissingSignature     Kind = "file-missing-signature"
	KindMissingPOMFile           Kind = "missing-pom-file"
	KindInvalidPOMFile           Kind = "invalid-pom-file"
	KindInvalidMavenMetadataFile Kind = "invalid-maven-metadata-file"
	KindDeployForbidden          Kind = "deploy-forbidden"
	KindDeployPasswordRejection  Kind = "deploy-password-rejection"
)

// defaultStatus gives the HTTP status a kind maps to absent an override.
var defaultStatus = map[Kind]int{
	KindRegexValidationFailed:    403,
	KindPOMEntryMismatch:         403,
	KindNonSnapshotRedeploy:      403,
	KindCentralShadow:            403,
	KindCentralShadowCheckFailed: 503,
	KindMissingJarFile:           403,
	KindFileMissingChecksum:      403,
	KindFileInvalidChecksum:      403,
	KindFileMissingSignature:     403,
	KindMissingPOMFile:           403,
	KindInvalidPOMFile:           403,
	KindInvalidMavenMetadataFile: 403,
	KindDeployForbidden:          403,
	KindDeployPasswordRejection:  401,
}

// DeployError is the single error type the validator, upload handler
// and finalizer raise. It satisfies error and carries enough
// structure for the HTTP layer to translate it without re-inspecting
// the message string.
type DeployError struct {
	Kind    Kind
	Message string
	Status  int

	// Validation marks an error that already went through the
	// validator (or an equivalent deliberate rejection). Per §9's open
	// question, such errors must be re-raised unchanged by the
	// finalizer rather than reclassified as deploy-forbidden.
	Validation bool
}

func (e *DeployError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New builds a DeployError for kind with the default status.
func New(kind Kind, format string, args ...interface{}) *DeployError {
	return &DeployError{
		Kind:       kind,
		Message:    fmt.Sprintf(format, args...),
		Status:     defaultStatus[kind],
		Validation: true,
	}
}

// Forbidden wraps a non-validation failure that bubbled up from inside
// a deploy as deploy-forbidden, per §7 ("Non-validation exceptions are
// wrapped as deploy-forbidden if they bubble from inside a deploy").
func Forbidden(format string, args ...interface{}) *DeployError {
	return &DeployError{
		Kind:       KindDeployForbidden,
		Message:    fmt.Sprintf(format, args...),
		Status:     defaultStatus[KindDeployForbidden],
		Validation: false,
	}
}

// AsDeployError unwraps err into a *DeployError, if it is one.
func AsDeployError(err error) (*DeployError, bool) {
	de, ok := err.(*DeployError)
	return de, ok
}

// Reclassify implements the §9 open-question resolution: if err is
// already a DeployError produced by validation (or any other
// deliberate rejection), it is returned unchanged. Otherwise it is
// wrapped as deploy-forbidden.
func Reclassify(err error) *DeployError {
	if de, ok := AsDeployError(err); ok {
		return de
	}
	return Forbidden("%v", err)
}

// Package httpapi is the HTTP surface of the auth-protection core: the
// login endpoint wrapped in the lockout state machine, the admin lockout
// management routes behind basic auth, health probes, and the guarded
// resume upload seam.
//
// The package deliberately knows nothing about password hashing or resume
// parsing; those live behind the CredentialVerifier and ResumeImporter
// function seams injected by the composition root.
package httpapi

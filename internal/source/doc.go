// Package source lists the units (source files) of a repository. Providers
// exist for local directories and S3 prefixes; a Mux picks one by the scheme
// of the repository ID.
package source

// Package testinfra starts throwaway PostgreSQL and Redis containers for
// integration tests. Everything here is behind the integration build tag:
//
//	go test -tags integration ./...
//
// Tests call SkipIfNoDocker first so the suite degrades to a skip on hosts
// without a Docker daemon.
package testinfra

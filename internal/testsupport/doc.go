// Package testsupport builds temp-directory configs, stub binaries and
// checkpoint stores for package tests.
package testsupport

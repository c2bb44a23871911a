// Package objects contains some objects need used by api and biz.
// To avoid circular dependencies, we put them here.
// All json tags use camel case.
package objects

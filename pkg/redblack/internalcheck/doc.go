// Package internalcheck holds static policy tests over the redblack packages.
//
// The tests load the library with golang.org/x/tools/go/packages and fail on
// patterns that leak key material or compare secrets in variable time: hex
// formatting verbs, == on byte slices or arrays, and private keys passed to a
// logger. The package exports nothing.
package internalcheck

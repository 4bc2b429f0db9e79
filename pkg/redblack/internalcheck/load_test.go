package internalcheck

import (
	"go/ast"
	"go/token"
	"testing"

	"golang.org/x/tools/go/packages"
)

const libraryPattern = "github.com/secmsg/redblack-go/pkg/redblack/..."

// loadLibrary type-checks every non-test package of the library.
func loadLibrary(t *testing.T) []*packages.Package {
	t.Helper()
	cfg := &packages.Config{
		Mode: packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo | packages.NeedFiles | packages.NeedName,
	}
	pkgs, err := packages.Load(cfg, libraryPattern)
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatal("packages failed to load")
	}
	return pkgs
}

// inspect calls fn for every node of every file, with the package it belongs to.
func inspect(pkgs []*packages.Package, fn func(pkg *packages.Package, n ast.Node) bool) {
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			ast.Inspect(file, func(n ast.Node) bool {
				return fn(pkg, n)
			})
		}
	}
}

func position(pkg *packages.Package, pos token.Pos) token.Position {
	return pkg.Fset.Position(pos)
}

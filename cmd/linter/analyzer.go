// Package linter содержит статический анализатор правил проекта:
// топики Sparkplug B собираются только пакетом topic, а процесс завершается только из main.main.
package linter

import (
	"go/ast"
	"go/token"
	"go/types"
	"strconv"
	"strings"

	"golang.org/x/tools/go/analysis"
)

// topicPrefix — начало любого топика Sparkplug B.
const topicPrefix = "spBv1.0/"

// topicPackage — единственный пакет, которому разрешено собирать топики из строк.
const topicPackage = "topic"

var Analyzer = &analysis.Analyzer{
	Name: "spblint",
	Doc: "reports Sparkplug B topic literals outside the topic package " +
		"and uses of panic, log.Fatal or os.Exit outside main.main",
	Run: run,
}

func run(pass *analysis.Pass) (any, error) {
	pkgName := pass.Pkg.Name()
	for _, file := range pass.Files {
		isTest := strings.HasSuffix(pass.Fset.File(file.Pos()).Name(), "_test.go")

		for _, decl := range file.Decls {
			funcName := ""
			if fDecl, ok := decl.(*ast.FuncDecl); ok {
				if fDecl.Body == nil {
					continue
				}
				funcName = fDecl.Name.Name
			}

			ast.Inspect(decl, func(node ast.Node) bool {
				switch n := node.(type) {
				case *ast.BasicLit:
					if !isTest && pkgName != topicPackage {
						checkTopicLiteral(pass, n)
					}
				case *ast.CallExpr:
					checkCall(pass, n, funcName, pkgName)
				}
				return true
			})
		}
	}
	return nil, nil
}

func checkTopicLiteral(pass *analysis.Pass, lit *ast.BasicLit) {
	if lit.Kind != token.STRING {
		return
	}
	s, err := strconv.Unquote(lit.Value)
	if err != nil {
		return
	}
	if strings.HasPrefix(s, topicPrefix) {
		pass.Reportf(lit.Pos(), "sparkplug topic literal; build topics with the topic package")
	}
}

func checkCall(pass *analysis.Pass, call *ast.CallExpr, funcName string, pkgName string) {
	if id, ok := call.Fun.(*ast.Ident); ok {
		if id.Name == "panic" {
			// встроенный panic не принадлежит ни одному пакету
			if obj := pass.TypesInfo.Uses[id]; obj != nil && obj.Pkg() == nil {
				pass.Reportf(id.Pos(), "use of builtin panic is discouraged")
			}
		}
		return
	}

	sel, ok := call.Fun.(*ast.SelectorExpr)
	if !ok {
		return
	}
	ident, ok := sel.X.(*ast.Ident)
	if !ok {
		return
	}
	pkgNameObj, ok := pass.TypesInfo.Uses[ident].(*types.PkgName)
	if !ok {
		return
	}
	if pkgName == "main" && funcName == "main" {
		return
	}

	switch pkgNameObj.Imported().Path() {
	case "log":
		switch sel.Sel.Name {
		case "Fatal", "Fatalf", "Fatalln":
			pass.Reportf(sel.Sel.Pos(), "call to log.Fatal or os.Exit outside main.main")
		}
	case "os":
		if sel.Sel.Name == "Exit" {
			pass.Reportf(sel.Sel.Pos(), "call to log.Fatal or os.Exit outside main.main")
		}
	}
}
